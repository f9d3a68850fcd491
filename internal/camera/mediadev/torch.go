// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mediadev

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// sysfsTorch drives a LED class device, e.g.
// /sys/class/leds/white:flash/brightness. "On" writes max_brightness when the
// sibling file exists, otherwise 1.
type sysfsTorch struct {
	path string
}

func newSysfsTorch(path string) *sysfsTorch {
	return &sysfsTorch{path: path}
}

func (t *sysfsTorch) check() error {
	f, err := os.OpenFile(t.path, os.O_WRONLY, 0) // #nosec G304 -- operator-configured LED path
	if err != nil {
		return fmt.Errorf("torch %s: %w", t.path, err)
	}
	return f.Close()
}

func (t *sysfsTorch) onValue() string {
	raw, err := os.ReadFile(filepath.Join(filepath.Dir(t.path), "max_brightness")) // #nosec G304
	if err != nil {
		return "1"
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || v <= 0 {
		return "1"
	}
	return strconv.Itoa(v)
}

func (t *sysfsTorch) set(on bool) error {
	val := "0"
	if on {
		val = t.onValue()
	}
	f, err := os.OpenFile(t.path, os.O_WRONLY|os.O_TRUNC, 0) // #nosec G304
	if err != nil {
		return fmt.Errorf("torch %s: %w", t.path, err)
	}
	if _, err := f.WriteString(val + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("torch %s: %w", t.path, err)
	}
	return f.Close()
}
