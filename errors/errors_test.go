package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:   PhaseRuntime,
				Kind:    KindExport,
				Detail:  "lookup failed",
				Context: "run",
				Cause:   errors.New("function \"run\" not found"),
			},
			contains: []string{"[runtime]", "export", "lookup failed", "context: run", "caused by", "not found"},
		},
		{
			name:     "minimal error",
			err:      &Error{Phase: PhaseHost, Kind: KindNoMemory},
			contains: []string{"[host]", "no_memory"},
		},
		{
			name:     "sentinel without phase",
			err:      ErrMemoryAccess,
			contains: []string{"memory_access"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseRuntime, KindRuntime, cause, "trap")

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
}

func TestError_Is(t *testing.T) {
	err := OutOfBounds(PhaseHost, 65530, 10, 65536)

	if !errors.Is(err, ErrMemoryAccess) {
		t.Error("kind-only sentinel should match")
	}
	if !errors.Is(err, &Error{Phase: PhaseHost, Kind: KindMemoryAccess}) {
		t.Error("matching phase and kind should match")
	}
	if errors.Is(err, &Error{Phase: PhaseRuntime, Kind: KindMemoryAccess}) {
		t.Error("different phase should not match")
	}
	if errors.Is(err, ErrInvalidUTF8) {
		t.Error("different kind should not match")
	}
	if errors.Is(err, errors.New("memory_access")) {
		t.Error("plain errors should not match")
	}

	wrapped := Wrap(PhaseHost, KindUnspecified, err, "print")
	if !errors.Is(wrapped, ErrMemoryAccess) {
		t.Error("errors.Is should walk the cause chain")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("missing")
	err := New(PhaseRuntime, KindExport).
		Context("run").
		Detail("export %q", "run").
		Value("run").
		Cause(cause).
		Build()

	if err.Phase != PhaseRuntime || err.Kind != KindExport {
		t.Errorf("phase/kind = %s/%s", err.Phase, err.Kind)
	}
	if err.Context != "run" {
		t.Errorf("Context = %q, want run", err.Context)
	}
	if err.Detail != `export "run"` {
		t.Errorf("Detail = %q", err.Detail)
	}
	if err.Value != "run" {
		t.Errorf("Value = %v", err.Value)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not wrapped")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		kind   Kind
		detail string
	}{
		{"already_errored", AlreadyErrored(errors.New("x")), KindAlreadyErrored, "captured"},
		{"io", IO("read file", errors.New("x")), KindIO, "read file"},
		{"compile", Compile(errors.New("x")), KindCompile, "compile"},
		{"parse", ParseFailed("WAT", errors.New("x")), KindParse, "WAT"},
		{"instantiation", Instantiation(errors.New("x")), KindInstantiation, "instantiate"},
		{"allocation", AllocationFailed(PhaseHost, 1024, nil), KindMemory, "1024"},
		{"export", Export(PhaseRuntime, errors.New("x"), "run"), KindExport, ""},
		{"runtime", Runtime("run", errors.New("x")), KindRuntime, `"run"`},
		{"out_of_bounds", OutOfBounds(PhaseHost, 10, 20, 16), KindMemoryAccess, "[10, 30)"},
		{"utf8", InvalidUTF8(PhaseHost, []byte{0xff}), KindInvalidUTF8, "ff"},
		{"lock", LockAbandoned(PhaseHost, "memory"), KindLockAbandoned, "memory"},
		{"no_memory", NoMemory(PhaseHost), KindNoMemory, "memory"},
		{"no_allocation", NoAllocation(PhaseHost), KindNoAllocation, "allocator"},
		{"unspecified", Unspecified(PhaseCompile, "module memory"), KindUnspecified, "module memory"},
		{"not_found", NotFound(PhaseRuntime, "function", "run"), KindInvalidInput, `"run"`},
		{"store_busy", StoreBusy("run"), KindStoreBusy, "run"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", tt.err.Kind, tt.kind)
			}
			if !strings.Contains(tt.err.Detail, tt.detail) {
				t.Errorf("Detail %q does not contain %q", tt.err.Detail, tt.detail)
			}
		})
	}
}

func TestInvalidUTF8_TruncatesPreview(t *testing.T) {
	data := make([]byte, 64)
	for i := range data {
		data[i] = 0xff
	}
	err := InvalidUTF8(PhaseHost, data)
	if strings.Count(err.Detail, "ff") != 32 {
		t.Errorf("expected 32 byte preview, got %q", err.Detail)
	}
}

func TestMissingImportsError(t *testing.T) {
	t.Run("grouped by namespace", func(t *testing.T) {
		err := NewMissingImportsError([]string{
			"debug#print",
			"debug#test_multivalue_static",
			"env#abort",
		})

		if len(err.Imports) != 3 {
			t.Fatalf("expected 3 imports, got %d", len(err.Imports))
		}
		msg := err.Error()
		for _, want := range []string{"missing 3", "debug:", "env:", "print", "test_multivalue_static", "abort"} {
			if !strings.Contains(msg, want) {
				t.Errorf("message %q missing %q", msg, want)
			}
		}
	})

	t.Run("key without separator", func(t *testing.T) {
		err := NewMissingImportsError([]string{"debug"})
		if err.Imports[0].Namespace != "debug" || err.Imports[0].Function != "" {
			t.Errorf("unexpected parse: %+v", err.Imports[0])
		}
	})

	t.Run("empty", func(t *testing.T) {
		err := NewMissingImportsError(nil)
		if !strings.Contains(err.Error(), "no imports specified") {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("is", func(t *testing.T) {
		var err error = NewMissingImportsError([]string{"debug#print"})
		if !errors.Is(err, ErrMissingImport) {
			t.Error("should match missing import kind")
		}
		var target *MissingImportsError
		if !errors.As(err, &target) {
			t.Error("errors.As should find MissingImportsError")
		}
	})
}
