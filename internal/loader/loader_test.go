package loader

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/tiwaz/internal/apperr"
)

func TestLoadSingleChunk(t *testing.T) {
	l := New(DefaultChunkConfig())
	chunks, err := l.Load("notes.txt", []byte("hello world"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if chunks[0].Source != "notes.txt" || chunks[0].Index != 0 {
		t.Errorf("chunk = %+v", chunks[0])
	}
	if chunks[0].Text != "hello world" {
		t.Errorf("text = %q", chunks[0].Text)
	}
}

func TestLoadNormalizes(t *testing.T) {
	l := New(DefaultChunkConfig())
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("line one\r\nline two\r\n")...)
	chunks, err := l.Load("doc.md", data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if chunks[0].Text != "line one\nline two" {
		t.Errorf("text = %q", chunks[0].Text)
	}
}

func TestLoadSplitsLongDocuments(t *testing.T) {
	l := New(ChunkConfig{Size: 100, Overlap: 20})
	text := strings.Repeat("word ", 200) // 1000 chars
	chunks, err := l.Load("long.txt", []byte(text))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(chunks) < 5 {
		t.Fatalf("chunks = %d, want several", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if len(c.Text) > 100 {
			t.Errorf("chunk %d length %d exceeds window", i, len(c.Text))
		}
	}
}

func TestLoadUnsupportedType(t *testing.T) {
	l := New(DefaultChunkConfig())
	_, err := l.Load("image.png", []byte("data"))
	if !errors.Is(err, apperr.ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
	if !strings.Contains(err.Error(), "image.png") {
		t.Errorf("error should carry the filename: %v", err)
	}
}

func TestLoadEmptyDocument(t *testing.T) {
	l := New(DefaultChunkConfig())
	if _, err := l.Load("empty.txt", []byte("   \n  ")); !errors.Is(err, apperr.ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}

func TestLoadBinaryContent(t *testing.T) {
	l := New(DefaultChunkConfig())
	if _, err := l.Load("weird.txt", []byte{'a', 0x00, 'b'}); !errors.Is(err, apperr.ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}

func TestSupported(t *testing.T) {
	for _, name := range []string{"a.txt", "b.MD", "c.csv", "d.log"} {
		if !Supported(name) {
			t.Errorf("Supported(%q) = false", name)
		}
	}
	for _, name := range []string{"a.pdf", "b.exe", "noext"} {
		if Supported(name) {
			t.Errorf("Supported(%q) = true", name)
		}
	}
}
