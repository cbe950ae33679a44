package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ToolEntry is one line of the tool table file (§6): either a lathe
// entry (8 fields) or a mill entry (4 fields).
type ToolEntry struct {
	Pocket       int
	ID           int
	ZOffset      float64
	XOffset      float64 // lathe only
	Diameter     float64
	FrontAngle   float64 // lathe only
	BackAngle    float64 // lathe only
	Orientation  int     // lathe only
	Lathe        bool
}

// LoadToolTable parses the tool table file: one tool per line, a
// discarded header line, pocket range validated against maxPocket.
func LoadToolTable(r io.Reader, maxPocket int) ([]ToolEntry, error) {
	scanner := bufio.NewScanner(r)
	var entries []ToolEntry

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if lineNo == 1 {
			continue // header line discarded
		}
		fields := strings.Fields(line)
		entry, err := parseToolLine(fields)
		if err != nil {
			return nil, fmt.Errorf("config: tool table line %d: %w", lineNo, err)
		}
		if entry.Pocket < 0 || entry.Pocket > maxPocket {
			return nil, fmt.Errorf("config: tool table line %d: pocket %d out of range [0,%d]", lineNo, entry.Pocket, maxPocket)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseToolLine(fields []string) (ToolEntry, error) {
	switch len(fields) {
	case 4:
		pocket, err := strconv.Atoi(fields[0])
		if err != nil {
			return ToolEntry{}, err
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return ToolEntry{}, err
		}
		z, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return ToolEntry{}, err
		}
		d, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return ToolEntry{}, err
		}
		return ToolEntry{Pocket: pocket, ID: id, ZOffset: z, Diameter: d}, nil

	case 8:
		vals := make([]float64, 0, 6)
		pocket, err := strconv.Atoi(fields[0])
		if err != nil {
			return ToolEntry{}, err
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return ToolEntry{}, err
		}
		for _, f := range fields[2:7] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return ToolEntry{}, err
			}
			vals = append(vals, v)
		}
		orient, err := strconv.Atoi(fields[7])
		if err != nil {
			return ToolEntry{}, err
		}
		return ToolEntry{
			Pocket: pocket, ID: id,
			ZOffset: vals[0], XOffset: vals[1], Diameter: vals[2],
			FrontAngle: vals[3], BackAngle: vals[4],
			Orientation: orient, Lathe: true,
		}, nil
	}
	return ToolEntry{}, fmt.Errorf("expected 4 or 8 fields, got %d", len(fields))
}
