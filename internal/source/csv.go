package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"eventcal/internal/model"
)

// CSVSource imports a spreadsheet export with a header row. Recognized
// columns (case-insensitive, spaces or underscores):
//
//	id, name, date, time, length, location, description,
//	registration_limit, repeats, repeat_ends
type CSVSource struct {
	path string
	loc  *time.Location
}

func NewCSVSource(path string, loc *time.Location) *CSVSource {
	return &CSVSource{path: path, loc: loc}
}

func (s *CSVSource) Name() string { return "csv" }

func (s *CSVSource) Fetch(context.Context) ([]model.Event, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("csv source: %w", err)
	}
	defer f.Close()

	raws, err := readCSV(f)
	if err != nil {
		return nil, fmt.Errorf("csv source: %s: %w", s.path, err)
	}
	return normalizeAll(raws, s.Name(), s.loc), nil
}

func readCSV(r io.Reader) ([]Raw, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
		cols[key] = i
	}

	var raws []Raw
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		get := func(names ...string) string {
			for _, n := range names {
				if i, ok := cols[n]; ok && i < len(row) {
					return strings.TrimSpace(row[i])
				}
			}
			return ""
		}
		if strings.Join(row, "") == "" {
			continue
		}

		raw := Raw{
			ID:          get("id"),
			Name:        get("name", "event_name"),
			Date:        get("date"),
			Time:        get("time"),
			Length:      atoiPtr(get("length", "length_minutes")),
			Location:    get("location"),
			Description: get("description", "additional_details"),
			Limit:       atoiPtr(get("registration_limit", "capacity")),
			RepeatTag:   get("repeats", "event_repeats", "repeat"),
			RepeatEnds:  get("repeat_ends"),
		}
		if n := atoiPtr(get("repeat_interval")); n != nil {
			raw.RepeatInterval = *n
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

func atoiPtr(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
