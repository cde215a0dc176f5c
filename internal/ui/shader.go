package ui

import "github.com/hajimehoshi/ebiten/v2"

// crtKage is a single Kage shader covering all non-off ShaderPreset
// values; Mode selects the preset at draw time so only one *ebiten.Shader
// needs to be compiled and cached on the App.
const crtKage = `
package main

var Mode float

func scanline(y float) float {
	return 0.88 + 0.12*abs(2.0*fract(y*0.5)-1.0)
}

func Fragment(dst vec4, src vec2, color vec4) vec4 {
	c := imageSrc0UnsafeAt(src)
	if Mode == 1 { // lcd: subtle per-row scanline shading
		c.rgb *= scanline(src.y)
	} else if Mode == 2 { // crt: stronger scanlines plus mild vignette
		c.rgb *= scanline(src.y) * scanline(src.y)
		d := src - imageSrc0Origin() - imageSrc0Size()*0.5
		d /= imageSrc0Size() * 0.5
		vig := 1.0 - 0.25*dot(d, d)
		c.rgb *= vig
	} else if Mode == 3 { // ghost: slight desaturation standing in for phosphor trail
		gray := (c.r + c.g + c.b) / 3.0
		c.rgb = mix(c.rgb, vec3(gray), 0.15)
	}
	return c
}
`

// shaderPresetMode maps a ShaderPreset config value to the Kage Mode
// uniform, reporting ok=false for "off" (or unknown) so callers skip
// shader compilation entirely in the common case.
func shaderPresetMode(preset string) (int, bool) {
	switch preset {
	case "lcd":
		return 1, true
	case "crt":
		return 2, true
	case "ghost":
		return 3, true
	default:
		return 0, false
	}
}

// ensureShader lazily compiles the shared Kage shader on first use.
func (a *App) ensureShader() {
	if a.shader != nil {
		return
	}
	sh, err := ebiten.NewShader([]byte(crtKage))
	if err != nil {
		// Keep rendering via the plain path; a compile failure here
		// shouldn't take down the emulator.
		return
	}
	a.shader = sh
}
