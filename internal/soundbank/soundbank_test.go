package soundbank

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeBank(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBank_LoadAndRead(t *testing.T) {
	data := []byte("DLS \x01\x02\x03\x04sample-data")
	path := writeBank(t, t.TempDir(), "bank.dls", data)

	b, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if b.Size() != len(data) {
		t.Errorf("size = %d, want %d", b.Size(), len(data))
	}
	if got := b.ReadAt(0, 4); !bytes.Equal(got, []byte("DLS ")) {
		t.Errorf("header = %q", got)
	}
	if got := b.ReadAt(8, 100); !bytes.Equal(got, []byte("sample-data")) {
		t.Errorf("tail read clamped wrong: %q", got)
	}
}

func TestBank_ReadAtClamping(t *testing.T) {
	path := writeBank(t, t.TempDir(), "b.dls", []byte{1, 2, 3, 4})
	b, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if got := b.ReadAt(10, 4); got != nil {
		t.Errorf("read past end = % x, want nil", got)
	}
	if got := b.ReadAt(-1, 4); got != nil {
		t.Errorf("negative offset = % x, want nil", got)
	}
	if got := b.ReadAt(2, 0); got != nil {
		t.Errorf("zero size = % x, want nil", got)
	}
	if got := b.ReadAt(3, 10); len(got) != 1 {
		t.Errorf("clamped read length = %d, want 1", len(got))
	}
}

// TestBank_CaseInsensitiveFallback covers banks shipped from systems
// that do not preserve filename case.
func TestBank_CaseInsensitiveFallback(t *testing.T) {
	dir := t.TempDir()
	writeBank(t, dir, "GMBANK.DLS", []byte("payload"))

	b, err := Load(filepath.Join(dir, "gmbank.dls"))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if filepath.Base(b.Path()) != "GMBANK.DLS" {
		t.Errorf("resolved to %s", b.Path())
	}
}

func TestBank_EmptyFileRejected(t *testing.T) {
	path := writeBank(t, t.TempDir(), "empty.dls", nil)
	if _, err := Load(path); !errors.Is(err, ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
}

func TestBank_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.dls")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestBank_CloseTwice(t *testing.T) {
	path := writeBank(t, t.TempDir(), "b.dls", []byte{1})
	b, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
