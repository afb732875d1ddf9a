package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Card is a catalog record. It is never mutated by the labeler.
type Card struct {
	Name        string            `json:"name"`
	TypeLine    string            `json:"type_line"`
	OracleText  string            `json:"oracle_text,omitempty"`
	Power       *string           `json:"power,omitempty"`
	Toughness   *string           `json:"toughness,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	ImageURIs   map[string]string `json:"image_uris,omitempty"`
	ScryfallURI string            `json:"scryfall_uri,omitempty"`
}

// ImageURL returns the png image link of the card, if any.
func (c *Card) ImageURL() string {
	if c.ImageURIs == nil {
		return ""
	}
	return c.ImageURIs["png"]
}

// CardRef references a card by name inside a Pair
type CardRef struct {
	Name string `json:"name"`
}

// UnmarshalJSON accepts both {"name": "..."} and the legacy bare string form.
func (r *CardRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.Name)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("card ref: %w", err)
	}
	r.Name = obj.Name
	return nil
}

// Key is the natural key of a Pair: the ordered tuple of card names.
type Key struct {
	Card1 string
	Card2 string
}

func (k Key) String() string {
	return k.Card1 + " / " + k.Card2
}

// Label is a manual synergy value on the 5-point bipolar scale.
type Label float64

const (
	LabelNegative     Label = -1
	LabelHalfNegative Label = -0.5
	LabelNone         Label = 0
	LabelHalfSynergy  Label = 0.5
	LabelSynergy      Label = 1
)

var labelCaptions = map[Label]string{
	LabelSynergy:      "synergy",
	LabelHalfSynergy:  "half-synergy",
	LabelNone:         "no",
	LabelHalfNegative: "half negative",
	LabelNegative:     "negative",
}

// Labels returns the assignable values in display order.
func Labels() []Label {
	return []Label{LabelSynergy, LabelHalfSynergy, LabelNone, LabelHalfNegative, LabelNegative}
}

// Valid reports whether l is one of the assignable values.
func (l Label) Valid() bool {
	_, ok := labelCaptions[l]
	return ok
}

// Caption returns the button caption of the label.
func (l Label) Caption() string {
	if c, ok := labelCaptions[l]; ok {
		return c
	}
	return strconv.FormatFloat(float64(l), 'g', -1, 64)
}

func (l Label) String() string {
	return strconv.FormatFloat(float64(l), 'f', 1, 64)
}

// ParseLabel accepts a numeric value ("-0.5") or a caption ("half negative").
func ParseLabel(s string) (Label, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		l := Label(f)
		if !l.Valid() {
			return 0, fmt.Errorf("label %s out of scale", s)
		}
		return l, nil
	}
	for l, c := range labelCaptions {
		if strings.EqualFold(c, s) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown label: %q", s)
}

// Pair is the unit of annotation.
type Pair struct {
	Card1     CardRef
	Card2     CardRef
	Predicted *float64
	Manual    *Label

	// Extra holds source fields this tool does not interpret, written back as-is.
	Extra map[string]json.RawMessage
}

// Key returns the natural key of the pair.
func (p Pair) Key() Key {
	return Key{Card1: p.Card1.Name, Card2: p.Card2.Name}
}

// Labeled reports whether a manual label is present.
func (p Pair) Labeled() bool {
	return p.Manual != nil
}

// WithManual returns a copy of p carrying the given manual label.
func (p Pair) WithManual(l Label) Pair {
	p.Manual = &l
	return p
}

// Clone returns a deep copy of p.
func (p Pair) Clone() Pair {
	if p.Predicted != nil {
		v := *p.Predicted
		p.Predicted = &v
	}
	if p.Manual != nil {
		v := *p.Manual
		p.Manual = &v
	}
	if p.Extra != nil {
		extra := make(map[string]json.RawMessage, len(p.Extra))
		for k, v := range p.Extra {
			extra[k] = append(json.RawMessage(nil), v...)
		}
		p.Extra = extra
	}
	return p
}

const (
	fieldCard1     = "card1"
	fieldCard2     = "card2"
	fieldPredicted = "synergy_predicted"
	fieldManual    = "synergy_manual"
)

// UnmarshalJSON decodes a pair, treating null synergy fields as absent.
func (p *Pair) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode pair: %w", err)
	}

	*p = Pair{}
	for name, raw := range fields {
		switch name {
		case fieldCard1:
			if err := json.Unmarshal(raw, &p.Card1); err != nil {
				return fmt.Errorf("decode card1: %w", err)
			}
		case fieldCard2:
			if err := json.Unmarshal(raw, &p.Card2); err != nil {
				return fmt.Errorf("decode card2: %w", err)
			}
		case fieldPredicted:
			if err := json.Unmarshal(raw, &p.Predicted); err != nil {
				return fmt.Errorf("decode %s: %w", fieldPredicted, err)
			}
		case fieldManual:
			if err := json.Unmarshal(raw, &p.Manual); err != nil {
				return fmt.Errorf("decode %s: %w", fieldManual, err)
			}
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]json.RawMessage)
			}
			p.Extra[name] = raw
		}
	}
	return nil
}

// MarshalJSON writes known fields first, then extras in name order.
func (p Pair) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(name string, v any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(name)
		buf.Write(k)
		buf.WriteByte(':')
		if raw, ok := v.(json.RawMessage); ok {
			buf.Write(raw)
			return nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		buf.Write(b)
		return nil
	}

	if err := write(fieldCard1, p.Card1); err != nil {
		return nil, err
	}
	if err := write(fieldCard2, p.Card2); err != nil {
		return nil, err
	}
	if p.Predicted != nil {
		if err := write(fieldPredicted, *p.Predicted); err != nil {
			return nil, err
		}
	}
	if p.Manual != nil {
		if err := write(fieldManual, float64(*p.Manual)); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(p.Extra))
	for name := range p.Extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := write(name, p.Extra[name]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
