package caldata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cjeanneret/lensvcm/internal/hw/vcm"
	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	region := []byte{0xAA, 0xBB, 0x02, 0x03, 0x10, 0xCC}

	got := Parse(region, 2)
	want := &vcm.Calibration{ControlMode: 0x02, Prescale: 0x03, AccTime: 0x10}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse (-want +got):\n%s", diff)
	}
}

func TestParse_Absent(t *testing.T) {
	cases := []struct {
		name   string
		region []byte
		offset int
	}{
		{"nil", nil, 0},
		{"empty", []byte{}, 0},
		{"short", []byte{1, 2}, 0},
		{"offset_past_end", []byte{1, 2, 3, 4}, 2},
		{"negative_offset", []byte{1, 2, 3}, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if cal := Parse(tc.region, tc.offset); cal != nil {
				t.Errorf("Parse = %+v, want nil", cal)
			}
		})
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eeprom")
	if err := os.WriteFile(path, []byte{0, 0, 0, 0, 0x05, 0x01, 0x36}, 0o644); err != nil {
		t.Fatal(err)
	}

	cal, err := FileSource{Path: path, Offset: 4}.Calibration()
	if err != nil {
		t.Fatalf("Calibration: %v", err)
	}
	if cal == nil || cal.AccMode() != 0xA1 || cal.AccTime != 0x36 {
		t.Errorf("Calibration = %+v", cal)
	}
}

func TestFileSource_MissingFileIsAbsent(t *testing.T) {
	cal, err := FileSource{Path: filepath.Join(t.TempDir(), "nope")}.Calibration()
	if err != nil {
		t.Errorf("missing file should not be an error: %v", err)
	}
	if cal != nil {
		t.Errorf("Calibration = %+v, want nil", cal)
	}
}

func TestFileSource_EmptyPath(t *testing.T) {
	cal, err := FileSource{}.Calibration()
	if cal != nil || err != nil {
		t.Errorf("Calibration = %+v, %v; want nil, nil", cal, err)
	}
}

func TestFileSource_ShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom")
	if err := os.WriteFile(path, []byte{1}, 0o644); err != nil {
		t.Fatal(err)
	}
	cal, err := FileSource{Path: path}.Calibration()
	if cal != nil || err != nil {
		t.Errorf("Calibration = %+v, %v; want nil, nil", cal, err)
	}
}
