package main

import (
	"bytes"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"sightline/internal/config"
	"sightline/internal/power"
)

func TestCheckPrintsEffectiveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sightline.yaml")
	body := "camera:\n  id: porch\nllm:\n  api_key: sk-secret\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out bytes.Buffer
	app := &cli.App{Writer: &out}
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String(flagConfig, path, "")
	c := cli.NewContext(app, set, nil)
	if err := checkAction(c); err != nil {
		t.Fatalf("check: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "id: porch") {
		t.Fatalf("camera id missing from output:\n%s", text)
	}
	if strings.Contains(text, "sk-secret") {
		t.Fatalf("api key leaked:\n%s", text)
	}
}

func TestCheckRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("alerts:\n  critical_distance: 5\n  warning_distance: 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String(flagConfig, path, "")
	if err := checkAction(cli.NewContext(&cli.App{}, set, nil)); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestClosersRunInReverseAndCombineErrors(t *testing.T) {
	var order []string
	cs := closers{
		func() error { order = append(order, "store"); return errors.New("store") },
		func() error { order = append(order, "producer"); return nil },
		func() error { order = append(order, "archive"); return errors.New("archive") },
	}
	err := cs.close()
	if strings.Join(order, ",") != "archive,producer,store" {
		t.Fatalf("unexpected order %v", order)
	}
	if err == nil || !strings.Contains(err.Error(), "store") || !strings.Contains(err.Error(), "archive") {
		t.Fatalf("expected combined error, got %v", err)
	}
}

func TestCaptureFPSFollowsReloadedConfig(t *testing.T) {
	mgr, err := config.NewManager("")
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	pm := power.NewManager(5, false, false)
	fps := captureFPS(mgr, pm)

	next := *mgr.Get()
	next.Camera.FPSProcessing = 7
	if err := mgr.Update(&next); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := fps(); got != 7 {
		t.Fatalf("expected reloaded fps 7, got %v", got)
	}
	pm.SetAdaptive(true)
	if got := fps(); got != 1 {
		t.Fatalf("expected ultra_saver profile fps 1, got %v", got)
	}
}
