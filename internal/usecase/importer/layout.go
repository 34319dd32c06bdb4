package importer

import (
	"fmt"
	"strconv"
	"strings"
)

// Field names used by column layouts and header aliases
const (
	FieldDate         = "date"
	FieldSymbol       = "symbol"
	FieldType         = "type"
	FieldAmount       = "amount"
	FieldFee          = "fee"
	FieldHash         = "hash"
	FieldAccount      = "account"
	FieldCounterValue = "countervalue"
)

// ColumnLayout maps each ledger field to a 0-based CSV column; -1 means absent
type ColumnLayout map[string]int

// DefaultColumnLayout is the column order of a Ledger Live operations export
func DefaultColumnLayout() ColumnLayout {
	return ColumnLayout{
		FieldDate:         0,
		FieldSymbol:       2,
		FieldType:         3,
		FieldAmount:       4,
		FieldFee:          5,
		FieldHash:         6,
		FieldAccount:      7,
		FieldCounterValue: 10,
	}
}

var headerAliases = map[string][]string{
	FieldDate:         {"operation date", "date", "timestamp"},
	FieldSymbol:       {"currency ticker", "currency", "symbol", "asset"},
	FieldType:         {"operation type", "type"},
	FieldAmount:       {"operation amount", "amount", "qty", "quantity"},
	FieldFee:          {"operation fees", "fee", "fees"},
	FieldHash:         {"operation hash", "hash", "txid", "tx hash"},
	FieldAccount:      {"account name", "account", "wallet"},
	FieldCounterValue: {"countervalue at operation date", "price eur", "value"},
}

// ParseColumnLayout reads the "field=index,..." override notation on top of the default layout
func ParseColumnLayout(raw string) (ColumnLayout, error) {
	layout := DefaultColumnLayout()
	if strings.TrimSpace(raw) == "" {
		return layout, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid column pair %q", pair)
		}
		field := strings.ToLower(strings.TrimSpace(parts[0]))
		if _, known := headerAliases[field]; !known {
			return nil, fmt.Errorf("unknown ledger field %q", field)
		}
		index, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid column index for %s: %w", field, err)
		}
		layout[field] = index
	}
	return layout, nil
}

// LayoutFromHeader resolves columns by their header names.
// Symbol and amount must be found; other fields fall back to absent.
func LayoutFromHeader(header []string) (ColumnLayout, error) {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, seen := positions[key]; !seen {
			positions[key] = i
		}
	}

	layout := make(ColumnLayout, len(headerAliases))
	for field, aliases := range headerAliases {
		layout[field] = -1
		for _, alias := range aliases {
			if i, ok := positions[alias]; ok {
				layout[field] = i
				break
			}
		}
	}

	for _, required := range []string{FieldDate, FieldSymbol, FieldAmount} {
		if layout[required] < 0 {
			return nil, fmt.Errorf("header has no %s column", required)
		}
	}
	return layout, nil
}

// cell returns the trimmed value of field in record, empty when absent
func (l ColumnLayout) cell(record []string, field string) string {
	i, ok := l[field]
	if !ok || i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
