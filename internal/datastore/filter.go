package datastore

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Where は列名から条件への対応。値にはリテラル（等価比較）、Equals/Contains、
// または {"equals": v} / {"contains": s} 形式のマップを指定できる。
type Where map[string]any

// Values は create/update で書き込む列名と値の対応。
type Values map[string]any

type opKind int

const (
	opEquals opKind = iota
	opContains
)

// Op はフィルタ演算子を表す。
type Op struct {
	kind  opKind
	value any
}

// Equals は明示的な等価比較条件を返す。
func Equals(v any) Op { return Op{kind: opEquals, value: v} }

// Contains は部分一致条件を返す。テキスト列にのみ使用できる。
func Contains(substr string) Op { return Op{kind: opContains, value: substr} }

func parseCondition(e *Entity, name string, raw any) (Op, error) {
	switch v := raw.(type) {
	case Op:
		return v, nil
	case map[string]any:
		if len(v) != 1 {
			return Op{}, &SchemaError{Entity: e.Name, Column: name, Reason: "operator object must have exactly one key"}
		}
		if val, ok := v["equals"]; ok {
			return Equals(val), nil
		}
		if val, ok := v["contains"]; ok {
			s, ok := val.(string)
			if !ok {
				return Op{}, &SchemaError{Entity: e.Name, Column: name, Reason: "contains requires a string"}
			}
			return Contains(s), nil
		}
		return Op{}, &SchemaError{Entity: e.Name, Column: name, Reason: "unsupported operator"}
	default:
		return Equals(v), nil
	}
}

// compileWhere は条件をSQLのWHERE句（"WHERE" を含まない）に変換する。
// プレースホルダは $start から採番する。列は名前順に並べ、生成SQLを安定させる。
func (e *Entity) compileWhere(where Where, start int) (string, []any, error) {
	var clauses []string
	var args []any
	n := start
	for _, name := range slices.Sorted(maps.Keys(where)) {
		c, ok := e.column(name)
		if !ok {
			return "", nil, &SchemaError{Entity: e.Name, Column: name, Reason: "unknown column"}
		}
		op, err := parseCondition(e, name, where[name])
		if err != nil {
			return "", nil, err
		}
		switch op.kind {
		case opEquals:
			if op.value == nil {
				clauses = append(clauses, c.Name+" IS NULL")
				continue
			}
			clauses = append(clauses, fmt.Sprintf("%s = $%d", c.Name, n))
		case opContains:
			if c.Kind != KindText {
				return "", nil, &SchemaError{Entity: e.Name, Column: name, Reason: "contains is only supported on text columns"}
			}
			clauses = append(clauses, fmt.Sprintf("strpos(%s, $%d) > 0", c.Name, n))
		}
		args = append(args, op.value)
		n++
	}
	return strings.Join(clauses, " AND "), args, nil
}

// writableColumns はエンティティの列順に並べた書き込み対象の列と値を返す。
func (e *Entity) writableColumns(data Values) ([]string, []any, error) {
	for name := range data {
		c, ok := e.column(name)
		if !ok {
			return nil, nil, &SchemaError{Entity: e.Name, Column: name, Reason: "unknown column"}
		}
		if !c.Writable {
			return nil, nil, &SchemaError{Entity: e.Name, Column: name, Reason: "column is not writable"}
		}
	}
	var names []string
	var args []any
	for _, c := range e.Columns {
		if v, ok := data[c.Name]; ok {
			names = append(names, c.Name)
			args = append(args, v)
		}
	}
	return names, args, nil
}
