// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pkgid

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParsePackageID(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"bitcoind", false},
		{"lnd-neutrino", false},
		{"-", false},
		{"", true},
		{"Bitcoind", true},
		{"bitcoin2", true},
		{"bit_coin", true},
		{"bit.coin", true},
		{"bit coin", true},
		{"../etc", true},
	}

	for _, test := range tests {
		_, err := ParsePackageID(test.input)
		if (err != nil) != test.wantErr {
			t.Errorf("ParsePackageID(%q): err=%v, wantErr=%v", test.input, err, test.wantErr)
		}
		if err != nil && !IsInvalidIdentifier(err) {
			t.Errorf("ParsePackageID(%q): error %T is not an InvalidIdentifierError", test.input, err)
		}
	}
}

func TestParseIDLengthLimit(t *testing.T) {
	long := make([]byte, maxIDLength+1)
	for index := range long {
		long[index] = 'a'
	}
	if _, err := ParseVolumeID(string(long)); err == nil {
		t.Errorf("ParseVolumeID accepted a %d-character id", len(long))
	}
	if _, err := ParseVolumeID(string(long[:maxIDLength])); err != nil {
		t.Errorf("ParseVolumeID rejected a %d-character id: %v", maxIDLength, err)
	}
}

func TestIdentifierKinds(t *testing.T) {
	check := func(kind string, err error) {
		t.Helper()
		var invalid *InvalidIdentifierError
		if err == nil {
			t.Fatalf("%s: expected error", kind)
		}
		if !errors.As(err, &invalid) {
			t.Fatalf("%s: error %T is not an InvalidIdentifierError", kind, err)
		}
		if invalid.Kind != kind {
			t.Errorf("Kind = %q, want %q", invalid.Kind, kind)
		}
	}

	_, err := ParseVolumeID("Main")
	check("volume", err)
	_, err = ParseInterfaceID("rpc1")
	check("interface", err)
	_, err = ParseImageID("")
	check("image", err)
	_, err = ParseVersion("not-a-version")
	check("version", err)
	_, err = ParseVersionRange(">>>1")
	check("version range", err)
}

func TestIdentifierJSONValidates(t *testing.T) {
	type wrapper struct {
		ID     PackageID   `json:"id"`
		Volume VolumeID    `json:"volume"`
		Iface  InterfaceID `json:"iface"`
	}
	var decoded wrapper
	if err := json.Unmarshal([]byte(`{"id":"lnd","volume":"main","iface":"rpc"}`), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ID != "lnd" || decoded.Volume != "main" || decoded.Iface != "rpc" {
		t.Errorf("decoded = %+v", decoded)
	}

	if err := json.Unmarshal([]byte(`{"id":"LND"}`), &decoded); err == nil {
		t.Error("Unmarshal accepted an uppercase package id")
	}
}

func TestImageReference(t *testing.T) {
	image := ImageID("main")
	got := image.ForPackage("bitcoind", MustParseVersion("0.21.1"))
	want := "start9/bitcoind/main:0.21.1"
	if got != want {
		t.Errorf("ForPackage = %q, want %q", got, want)
	}
}

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"2.0.0", "1.9.9", 1},
		{"1.0.0-beta", "1.0.0", -1},
		{"v1.2.3", "1.2.3", 0},
	}
	for _, test := range tests {
		got := MustParseVersion(test.a).Compare(MustParseVersion(test.b))
		if got != test.want {
			t.Errorf("Compare(%s, %s) = %d, want %d", test.a, test.b, got, test.want)
		}
	}

	var zero Version
	if !zero.IsZero() {
		t.Error("zero Version should be IsZero()")
	}
	if zero.Compare(MustParseVersion("0.0.1")) != -1 {
		t.Error("zero Version should sort before every set version")
	}
}

func TestVersionSatisfies(t *testing.T) {
	tests := []struct {
		version string
		rng     string
		want    bool
	}{
		{"1.2.3", "*", true},
		{"1.2.3-rc.1", "*", true},
		{"1.2.3", "", true},
		{"1.2.3", ">=1.0.0 <2.0.0", true},
		{"2.0.0", ">=1.0.0 <2.0.0", false},
		{"0.3.5", "^0.3", true},
		{"0.4.0", "^0.3", false},
		{"1.0.0", "=1.0.0", true},
	}
	for _, test := range tests {
		got := MustParseVersion(test.version).Satisfies(MustParseVersionRange(test.rng))
		if got != test.want {
			t.Errorf("%s.Satisfies(%q) = %v, want %v", test.version, test.rng, got, test.want)
		}
	}

	var zero Version
	if zero.Satisfies(AnyVersion) {
		t.Error("zero Version should satisfy nothing")
	}
}

func TestVersionJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		Version Version      `json:"version"`
		Range   VersionRange `json:"range"`
		Min     Version      `json:"min"`
	}
	original := wrapper{
		Version: MustParseVersion("0.3.2"),
		Range:   MustParseVersionRange(">=0.3.0"),
	}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"version":"0.3.2","range":">=0.3.0","min":""}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	var decoded wrapper
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.Version.Equal(original.Version) {
		t.Errorf("Version = %s, want %s", decoded.Version, original.Version)
	}
	if decoded.Range.String() != ">=0.3.0" {
		t.Errorf("Range = %s, want >=0.3.0", decoded.Range)
	}
	if !decoded.Min.IsZero() {
		t.Errorf("Min = %s, want zero", decoded.Min)
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		input     string
		wantID    PackageID
		wantRange string
		wantErr   bool
	}{
		{"bitcoind", "bitcoind", "*", false},
		{"bitcoind@>=0.21.0 <0.22.0", "bitcoind", ">=0.21.0 <0.22.0", false},
		{"lnd@ ^0.13 ", "lnd", "^0.13", false},
		{"lnd@*", "lnd", "*", false},
		{"", "", "", true},
		{"LND@1.0.0", "", "", true},
		{"lnd@>>1", "", "", true},
	}
	for _, test := range tests {
		target, err := ParseTarget(test.input)
		if (err != nil) != test.wantErr {
			t.Errorf("ParseTarget(%q): err=%v, wantErr=%v", test.input, err, test.wantErr)
			continue
		}
		if err != nil {
			if !IsInvalidIdentifier(err) {
				t.Errorf("ParseTarget(%q): error does not wrap InvalidIdentifierError: %v", test.input, err)
			}
			continue
		}
		if target.ID != test.wantID {
			t.Errorf("ParseTarget(%q).ID = %q, want %q", test.input, target.ID, test.wantID)
		}
		if target.Range.String() != test.wantRange {
			t.Errorf("ParseTarget(%q).Range = %q, want %q", test.input, target.Range, test.wantRange)
		}
	}
}

func TestMustParsePackageIDPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustParsePackageID should panic on invalid input")
		}
	}()
	MustParsePackageID("")
}
