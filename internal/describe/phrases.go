package describe

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"sightline/internal/model"
)

type phrasebook struct {
	pathClear string
	veryClose string
	close     string
	caution   string
	positions map[model.Position]string
	classes   map[string]string
}

var phrasebooks = map[string]phrasebook{
	"en": {
		pathClear: "Path clear",
		veryClose: "very close",
		close:     "close",
		caution:   "Caution, %s very close",
		positions: map[model.Position]string{
			model.PositionCenter: "ahead",
			model.PositionLeft:   "on your left",
			model.PositionRight:  "on your right",
		},
	},
	"es": {
		pathClear: "Camino despejado",
		veryClose: "muy cerca",
		close:     "cerca",
		caution:   "Cuidado, %s muy cerca",
		positions: map[model.Position]string{
			model.PositionCenter: "frente a ti",
			model.PositionLeft:   "a tu izquierda",
			model.PositionRight:  "a tu derecha",
		},
		classes: map[string]string{
			"person":       "persona",
			"car":          "auto",
			"truck":        "camión",
			"bicycle":      "bicicleta",
			"motorcycle":   "motocicleta",
			"bus":          "autobús",
			"chair":        "silla",
			"door":         "puerta",
			"stairs":       "escaleras",
			"bench":        "banco",
			"bottle":       "botella",
			"cup":          "taza",
			"cell phone":   "teléfono",
			"laptop":       "computadora",
			"dog":          "perro",
			"cat":          "gato",
			"tree":         "árbol",
			"dining table": "mesa",
			"couch":        "sofá",
		},
	},
}

func book(lang string) phrasebook {
	if b, ok := phrasebooks[strings.ToLower(lang)]; ok {
		return b
	}
	return phrasebooks["en"]
}

// ClassName returns the spoken name of a detector class in lang.
func ClassName(lang, class string) string {
	if name, ok := book(lang).classes[class]; ok {
		return name
	}
	return class
}

func PositionPhrase(lang string, pos model.Position) string {
	b := book(lang)
	if p, ok := b.positions[pos]; ok {
		return p
	}
	return b.positions[model.PositionCenter]
}

// Fallback builds the canned sentence for the nearest detection. dets must be
// sorted nearest first.
func Fallback(lang string, dets []model.Detection) string {
	b := book(lang)
	if len(dets) == 0 {
		return b.pathClear
	}
	d := dets[0]
	parts := []string{ClassName(lang, d.Class)}
	switch {
	case d.Distance < 1.5:
		parts = append(parts, b.veryClose)
	case d.Distance < 3:
		parts = append(parts, b.close)
	}
	parts = append(parts, PositionPhrase(lang, d.Position))
	return capitalize(strings.Join(parts, " "))
}

// CautionMessage is spoken at critical priority when something is about to be hit.
func CautionMessage(lang, class string) string {
	return fmt.Sprintf(book(lang).caution, ClassName(lang, class))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
