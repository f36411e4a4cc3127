package archive

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github.com/pricedash/pricedash/internal/query"
)

const ContentType = "application/vnd.apache.parquet"

type columnKind int

const (
	kindInt64 columnKind = iota
	kindDouble
	kindString
)

// EncodeDataset writes data as a single Parquet file. Each column becomes an
// optional INT64, DOUBLE or STRING leaf depending on the values it holds.
func EncodeDataset(data query.Dataset) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("dataset has no columns")
	}
	for r, source := range data.Rows {
		if len(source) != len(data.Columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", r, len(source), len(data.Columns))
		}
	}

	kinds := make([]columnKind, len(data.Columns))
	group := parquet.Group{}
	for i, name := range data.Columns {
		if _, exists := group[name]; exists {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		kinds[i] = inferKind(data, i)
		group[name] = leafFor(kinds[i])
	}
	schema := parquet.NewSchema("dataset", group)

	// Leaf columns are ordered by name in the schema.
	order := make([]int, len(data.Columns))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return data.Columns[order[a]] < data.Columns[order[b]] })

	rows := make([]parquet.Row, 0, len(data.Rows))
	for _, source := range data.Rows {
		row := make(parquet.Row, len(order))
		for leaf, column := range order {
			row[leaf] = encodeValue(source[column], kinds[column], leaf)
		}
		rows = append(rows, row)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema)
	if _, err := writer.WriteRows(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func leafFor(kind columnKind) parquet.Node {
	switch kind {
	case kindInt64:
		return parquet.Optional(parquet.Leaf(parquet.Int64Type))
	case kindDouble:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	default:
		return parquet.Optional(parquet.String())
	}
}

func inferKind(data query.Dataset, column int) columnKind {
	kind := kindInt64
	for _, row := range data.Rows {
		switch value := row[column].(type) {
		case nil:
		case int, int8, int16, int32, int64, uint8, uint16, uint32:
		case string:
			return kindString
		default:
			if _, ok := query.Float64(value); !ok {
				return kindString
			}
			kind = kindDouble
		}
	}
	return kind
}

func encodeValue(value any, kind columnKind, leaf int) parquet.Value {
	if value == nil {
		return parquet.NullValue().Level(0, 0, leaf)
	}
	var encoded parquet.Value
	switch kind {
	case kindInt64:
		encoded = parquet.Int64Value(toInt64(value))
	case kindDouble:
		number, _ := query.Float64(value)
		encoded = parquet.DoubleValue(number)
	default:
		encoded = parquet.ByteArrayValue([]byte(fmt.Sprint(value)))
	}
	return encoded.Level(0, 1, leaf)
}

func toInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case int64:
		return typed
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	default:
		return 0
	}
}
