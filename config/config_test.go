package config

import "testing"

func TestDefaultsPopulatesMPPAndPort(t *testing.T) {
	opts := Defaults()
	if opts.MPP != DefaultMPP {
		t.Errorf("MPP = %d, want %d", opts.MPP, DefaultMPP)
	}
	if opts.Port != 23 {
		t.Errorf("Port = %d, want 23", opts.Port)
	}
	if opts.CodePage != "037" {
		t.Errorf("CodePage = %q, want %q", opts.CodePage, "037")
	}
}
