package parser

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"dvfmarket/server/internal/models"
)

// Reader streams transactions out of a pipe-delimited DVF extract.
// It works like csv.Reader: call Read until io.EOF. Malformed lines and
// records without an identifiable monetary value are skipped, never fatal.
type Reader struct {
	csv     *csv.Reader
	cols    map[string]int
	skipped int
}

var ErrNoHeader = errors.New("dvf file has no header line")

// Recognized column names after normalization. The official extracts have
// shipped both "Date mutation" and "date_mutation" style headers over the
// years; normalization makes them equivalent.
const (
	colDate        = "datemutation"
	colNature      = "naturemutation"
	colValue       = "valeurfonciere"
	colLotNumber   = "lot1numero"
	colLotNumber2  = "1erlot"
	colLotArea     = "lot1surfacecarrez"
	colLotArea2    = "surfacecarrezdu1erlot"
	colTypeCode    = "codetypelocal"
	colTypeLabel   = "typelocal"
	colBuiltArea   = "surfacereellebati"
	colRoomCount   = "nombrepiecesprincipales"
	colLandArea    = "surfaceterrain"
	colLongitude   = "longitude"
	colLatitude    = "latitude"
	colPostalCode  = "codepostal"
	colCommuneName = "nomcommune"
	colCommune2    = "commune"
	colCommuneCode = "codecommune"
	colDepartment  = "codedepartement"
)

// New wraps r and consumes its header line. The header uses '|' as field
// separator; unrecognized columns are ignored.
func New(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.Comma = '|'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		return nil, err
	}

	cols := make(map[string]int)
	for i, name := range header {
		cols[normalizeHeader(name)] = i
	}

	return &Reader{csv: cr, cols: cols}, nil
}

// Read returns the next parsed transaction, or io.EOF when the stream is
// exhausted. Lines that cannot be split and records without a monetary
// value are counted and skipped. An error from the underlying reader is
// fatal: a broken download must fail the import, not spin on the same
// error forever.
func (p *Reader) Read() (*models.Transaction, error) {
	for {
		record, err := p.csv.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				// A line the splitter chokes on is dropped, not fatal.
				p.skipped++
				continue
			}
			return nil, err
		}

		tx := p.parseRecord(record)
		if tx == nil {
			p.skipped++
			continue
		}
		return tx, nil
	}
}

// Skipped returns the number of lines dropped so far, either malformed or
// lacking a monetary value.
func (p *Reader) Skipped() int {
	return p.skipped
}

func (p *Reader) parseRecord(record []string) *models.Transaction {
	value := parseDecimal(p.field(record, colValue))
	if value == nil {
		// No monetary value means nothing to analyze.
		return nil
	}

	tx := &models.Transaction{
		MutationNature:    p.field(record, colNature),
		Value:             value,
		LotNumber:         firstNonEmpty(p.field(record, colLotNumber), p.field(record, colLotNumber2)),
		LotArea:           parseDecimal(firstNonEmpty(p.field(record, colLotArea), p.field(record, colLotArea2))),
		PropertyTypeCode:  p.field(record, colTypeCode),
		PropertyTypeLabel: p.field(record, colTypeLabel),
		BuiltArea:         parseDecimal(p.field(record, colBuiltArea)),
		RoomCount:         parseCount(p.field(record, colRoomCount)),
		LandArea:          parseDecimal(p.field(record, colLandArea)),
		Latitude:          parseDecimal(p.field(record, colLatitude)),
		Longitude:         parseDecimal(p.field(record, colLongitude)),
		PostalCode:        strings.TrimSpace(p.field(record, colPostalCode)),
		CommuneName:       firstNonEmpty(p.field(record, colCommuneName), p.field(record, colCommune2)),
		CommuneCode:       strings.TrimSpace(p.field(record, colCommuneCode)),
		DepartmentCode:    strings.TrimSpace(p.field(record, colDepartment)),
	}

	if d, ok := parseDate(p.field(record, colDate)); ok {
		tx.MutationDate = d
	}
	tx.PricePerArea = tx.ComputePricePerArea()

	return tx
}

func (p *Reader) field(record []string, col string) string {
	idx, ok := p.cols[col]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func normalizeHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return r
	}, name)
}

// parseDecimal parses a French decimal ("1234,56"). Nil when absent or
// unparseable; a bad field is treated as missing, not as an error.
func parseDecimal(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseCount(s string) *int {
	f := parseDecimal(s)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

var dateLayouts = []string{"2006-01-02", "02/01/2006"}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
