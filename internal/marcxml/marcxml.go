// Package marcxml parses SRU searchRetrieve response envelopes and
// MARCXML records, extracting control/data fields and subfields per
// spec §4.2.2. Adapted from the teacher pack's binary-MARC field model
// (chun79-Open-Z3950-Gateway/pkg/z3950/marc.go) to the XML wire format
// SRU actually returns.
package marcxml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// Subfield is one lettered subfield within a MARC data field.
type Subfield struct {
	Code  string
	Value string
}

// Field is one MARC field, either a control field (tag < 010, Value set,
// Subfields empty) or a data field (Subfields set).
type Field struct {
	Tag       string
	Indicator1 string
	Indicator2 string
	Value     string
	Subfields []Subfield
}

// First returns the value of the first subfield with the given code, or
// "" if none is present.
func (f Field) First(code string) string {
	for _, sf := range f.Subfields {
		if sf.Code == code {
			return sf.Value
		}
	}
	return ""
}

// Record is one parsed MARCXML bibliographic record.
type Record struct {
	Leader string
	Fields []Field
}

// FieldsByTag returns every field with the given tag, preserving document order.
func (r Record) FieldsByTag(tag string) []Field {
	var out []Field
	for _, f := range r.Fields {
		if f.Tag == tag {
			out = append(out, f)
		}
	}
	return out
}

// rawRecord mirrors the MARCXML schema's <record> element directly, with
// and without the zs: namespace prefix SRU responses inconsistently use.
type rawRecord struct {
	Leader     string         `xml:"leader"`
	Controlfields []rawControl `xml:"controlfield"`
	Datafields []rawDatafield `xml:"datafield"`
}

type rawControl struct {
	Tag   string `xml:"tag,attr"`
	Value string `xml:",chardata"`
}

type rawDatafield struct {
	Tag        string         `xml:"tag,attr"`
	Ind1       string         `xml:"ind1,attr"`
	Ind2       string         `xml:"ind2,attr"`
	Subfields  []rawSubfield  `xml:"subfield"`
}

type rawSubfield struct {
	Code  string `xml:"code,attr"`
	Value string `xml:",chardata"`
}

// searchRetrieveEnvelope covers both the unprefixed and zs:-prefixed
// element names an SRU server may use for the searchRetrieve response.
type searchRetrieveEnvelope struct {
	XMLName      xml.Name
	NumberOfRecords int       `xml:"numberOfRecords"`
	Records      []sruRecord `xml:"records>record"`
}

type sruRecord struct {
	RecordData rawRecordData `xml:"recordData"`
}

// rawRecordData holds the <record> payload inside <recordData>, tolerating
// either namespace form by matching on local name via a second decode
// pass (encoding/xml doesn't let us wildcard-match namespaces in struct
// tags, so we re-parse the captured inner XML).
type rawRecordData struct {
	Inner []byte `xml:",innerxml"`
}

// newSafeDecoder returns an xml.Decoder with external entity and DTD
// expansion disabled, hardening against XXE per spec §4.2.2.
func newSafeDecoder(r *bytes.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	dec.Entity = map[string]string{} // no external entities resolved
	// CharsetReader is left nil: encoding/xml never dereferences external
	// DTDs or entity URIs on its own, so leaving it unset is what prevents
	// any network fetch a malicious DOCTYPE might otherwise trigger.
	return dec
}

// ParseSearchRetrieveResponse parses an SRU searchRetrieve response body
// and returns the MARCXML records it contains, regardless of whether the
// server used the zs: namespace prefix.
func ParseSearchRetrieveResponse(body []byte) ([]Record, error) {
	dec := newSafeDecoder(bytes.NewReader(body))

	var env searchRetrieveEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding searchRetrieve envelope: %w", err)
	}

	records := make([]Record, 0, len(env.Records))
	for _, sr := range env.Records {
		rec, err := ParseRecord(sr.RecordData.Inner)
		if err != nil {
			continue // skip malformed individual records rather than failing the whole response
		}
		records = append(records, rec)
	}
	return records, nil
}

// ParseRecord parses one <record>...</record> (or <marc:record>, etc.)
// MARCXML fragment.
func ParseRecord(data []byte) (Record, error) {
	dec := newSafeDecoder(bytes.NewReader(data))

	var raw rawRecord
	if err := dec.Decode(&raw); err != nil {
		return Record{}, fmt.Errorf("decoding MARCXML record: %w", err)
	}

	rec := Record{Leader: raw.Leader}
	for _, cf := range raw.Controlfields {
		rec.Fields = append(rec.Fields, Field{Tag: cf.Tag, Value: strings.TrimSpace(cf.Value)})
	}
	for _, df := range raw.Datafields {
		f := Field{Tag: df.Tag, Indicator1: df.Ind1, Indicator2: df.Ind2}
		for _, sf := range df.Subfields {
			f.Subfields = append(f.Subfields, Subfield{Code: sf.Code, Value: strings.TrimSpace(sf.Value)})
		}
		rec.Fields = append(rec.Fields, f)
	}
	return rec, nil
}

// SearchRetrieveURL builds the SRU 1.1 searchRetrieve URL spec §4.2.2 pins
// bit-exact: {base}?version=1.1&operation=searchRetrieve&query=bath.isbn={isbn}&recordSchema=marcxml&maximumRecords=50.
func SearchRetrieveURL(base, isbn13 string) string {
	base = strings.TrimRight(base, "/")
	return fmt.Sprintf("%s?version=1.1&operation=searchRetrieve&query=bath.isbn=%s&recordSchema=marcxml&maximumRecords=50", base, isbn13)
}
