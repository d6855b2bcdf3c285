package describe

import (
	"fmt"
	"strings"

	"sightline/internal/model"
)

const maxPromptObjects = 5

var instructions = map[string]string{
	"en": "Describe the scene for a blind person who is walking.\n" +
		"Mention only what matters most for their safety.\n" +
		"Use short, clear sentences.\n" +
		"At most 2 sentences.",
	"es": "Describe la escena para una persona ciega que camina.\n" +
		"Menciona solo lo más importante para su seguridad.\n" +
		"Usa frases cortas y claras.\n" +
		"Máximo 2 frases.",
}

// BuildPrompt lists up to five objects nearest first followed by the
// narration instructions.
func BuildPrompt(lang string, dets []model.Detection) string {
	header := "Detected objects:"
	at := "at"
	if strings.EqualFold(lang, "es") {
		header = "Objetos detectados:"
		at = "a"
	}
	instr, ok := instructions[strings.ToLower(lang)]
	if !ok {
		instr = instructions["en"]
	}
	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')
	for i, d := range dets {
		if i >= maxPromptObjects {
			break
		}
		fmt.Fprintf(&b, "%d. %s %s %.1fm %s\n", i+1, ClassName(lang, d.Class), at, d.Distance, PositionPhrase(lang, d.Position))
	}
	b.WriteByte('\n')
	b.WriteString(instr)
	return b.String()
}

// Clean strips markdown artifacts and caps the text at maxLen characters,
// cutting back to the last full stop when it has to truncate.
func Clean(text string, maxLen int) string {
	text = strings.NewReplacer("*", "", "#", "").Replace(text)
	text = strings.TrimSpace(text)
	if maxLen <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	cut := string(runes[:maxLen])
	if idx := strings.LastIndex(cut, "."); idx > 0 {
		return cut[:idx+1]
	}
	return strings.TrimSpace(cut) + "."
}
