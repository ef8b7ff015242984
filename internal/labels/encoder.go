// Package labels maps class labels to dense integer indices and back.
package labels

import (
	"fmt"
	"io"
	"os"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Encoder is a bidirectional mapping between class index and label.
// Indices follow the sorted order of the distinct labels, so the same label
// set always produces the same mapping.
type Encoder struct {
	classes []string
	index   map[string]int
}

// Fit builds an Encoder from the observed labels.
func Fit(observed []string) (*Encoder, error) {
	if len(observed) == 0 {
		return nil, fmt.Errorf("no labels to fit")
	}

	seen := make(map[string]struct{}, len(observed))
	classes := make([]string, 0)
	for _, l := range observed {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		classes = append(classes, l)
	}
	sort.Strings(classes)

	return New(classes)
}

// New creates an Encoder from an already ordered class list.
func New(classes []string) (*Encoder, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("encoder has no classes")
	}

	e := &Encoder{
		classes: append([]string(nil), classes...),
		index:   make(map[string]int, len(classes)),
	}
	for i, c := range e.classes {
		if _, dup := e.index[c]; dup {
			return nil, fmt.Errorf("duplicate class %q", c)
		}
		e.index[c] = i
	}
	return e, nil
}

// Classes returns the labels in index order.
func (e *Encoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

// Len returns the number of classes.
func (e *Encoder) Len() int {
	return len(e.classes)
}

// Encode returns the index of a label.
func (e *Encoder) Encode(label string) (int, error) {
	i, ok := e.index[label]
	if !ok {
		return 0, fmt.Errorf("unknown label %q", label)
	}
	return i, nil
}

// EncodeAll encodes a slice of labels.
func (e *Encoder) EncodeAll(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, l := range labels {
		idx, err := e.Encode(l)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

// Decode returns the label for a class index.
func (e *Encoder) Decode(index int) (string, error) {
	if index < 0 || index >= len(e.classes) {
		return "", fmt.Errorf("class index %d out of range [0,%d)", index, len(e.classes))
	}
	return e.classes[index], nil
}

type encoderFile struct {
	Classes []string `json:"classes"`
}

// MarshalJSON implements json.Marshaler.
func (e *Encoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(encoderFile{Classes: e.classes})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Encoder) UnmarshalJSON(data []byte) error {
	var f encoderFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	decoded, err := New(f.Classes)
	if err != nil {
		return err
	}
	*e = *decoded
	return nil
}

// Write serializes the encoder.
func (e *Encoder) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

// Read deserializes an encoder written by Write.
func Read(r io.Reader) (*Encoder, error) {
	var e Encoder
	if err := json.NewDecoder(r).Decode(&e); err != nil {
		return nil, fmt.Errorf("decode label encoder: %w", err)
	}
	return &e, nil
}

// Load reads an encoder from a file.
func Load(path string) (*Encoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}
