// Package resolver maps the arbitrary header names of a CBHPM export onto the
// five canonical fields using an ordered alias table.
package resolver

import (
	"strings"
)

// Field is a canonical column of the reference table.
type Field string

const (
	FieldCode              Field = "code"
	FieldDescription       Field = "description"
	FieldSurgicalValue     Field = "surgical_value"
	FieldRelativeUnitValue Field = "relative_unit_value"
	FieldFilmQuantity      Field = "film_quantity"
)

// Fields lists every canonical field in resolution order.
var Fields = []Field{
	FieldCode,
	FieldDescription,
	FieldSurgicalValue,
	FieldRelativeUnitValue,
	FieldFilmQuantity,
}

// MandatoryFields must resolve for a file to be imported at all.
var MandatoryFields = []Field{FieldCode, FieldDescription}

// NumericFields default to zero when unresolved.
var NumericFields = []Field{FieldSurgicalValue, FieldRelativeUnitValue, FieldFilmQuantity}

// AliasTable maps each canonical field to the header spellings accepted for it,
// highest priority first.
type AliasTable map[Field][]string

// DefaultAliases covers the header spellings found in published editions of
// the table and in the spreadsheets derived from them.
var DefaultAliases = AliasTable{
	FieldCode: {
		"Código", "Codigo", "CÓDIGO", "CODIGO", "código", "codigo",
		"Cód.", "Cod.", "Cód", "Cod",
		"Código do Procedimento", "Codigo do Procedimento",
		"Código TUSS", "Codigo TUSS",
	},
	FieldDescription: {
		"Descrição", "Descricao", "DESCRIÇÃO", "DESCRICAO", "descrição", "descricao",
		"Procedimento", "PROCEDIMENTO", "procedimento",
		"Descrição do Procedimento", "Descricao do Procedimento",
		"Nome do Procedimento",
	},
	FieldSurgicalValue: {
		"Porte", "PORTE", "porte",
		"Valor Porte", "Valor do Porte", "Porte (R$)", "Porte R$",
		"Porte Cirúrgico", "Porte Cirurgico",
	},
	FieldRelativeUnitValue: {
		"UCO", "uco", "Uco",
		"Custo Operacional", "CUSTO OPERACIONAL", "custo operacional",
		"Custo Oper.", "C.O.", "CO",
	},
	FieldFilmQuantity: {
		"Filme", "FILME", "filme",
		"Filme (m²)", "Filme (m2)", "Filme m²", "Filme m2",
		"Qtd Filme", "Quantidade de Filme",
	},
}

// With returns a copy of the table with extra aliases appended to field, at
// lower priority than the existing ones.
func (t AliasTable) With(field Field, aliases ...string) AliasTable {
	out := make(AliasTable, len(t)+1)
	for f, list := range t {
		out[f] = append([]string(nil), list...)
	}
	out[field] = append(out[field], aliases...)
	return out
}

// Resolution is the outcome of matching one header row.
type Resolution struct {
	// Columns maps each resolved field to its column index.
	Columns map[Field]int
	// Headers maps each resolved field to the (trimmed) header that matched.
	Headers map[Field]string
	// Unresolved lists fields with no matching header, in Fields order.
	Unresolved []Field
}

// Column returns the column index of field and whether it resolved.
func (r Resolution) Column(field Field) (int, bool) {
	idx, ok := r.Columns[field]
	return idx, ok
}

// MissingMandatory lists the mandatory fields that did not resolve.
func (r Resolution) MissingMandatory() []Field {
	var missing []Field
	for _, f := range MandatoryFields {
		if _, ok := r.Columns[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// Missing reports whether code or description is unresolved.
func (r Resolution) Missing() bool {
	return len(r.MissingMandatory()) > 0
}

// UnresolvedNumeric lists the numeric fields that will default to zero.
func (r Resolution) UnresolvedNumeric() []Field {
	var out []Field
	for _, f := range NumericFields {
		if _, ok := r.Columns[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// Resolve matches trimmed headers against aliases. For each field the first
// alias, in priority order, that equals a header exactly wins; when a header
// appears twice the leftmost column is used.
func Resolve(headers []string, aliases AliasTable) Resolution {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, seen := index[h]; !seen {
			index[h] = i
		}
	}

	res := Resolution{
		Columns: make(map[Field]int, len(Fields)),
		Headers: make(map[Field]string, len(Fields)),
	}
	for _, field := range Fields {
		matched := false
		for _, alias := range aliases[field] {
			if idx, ok := index[strings.TrimSpace(alias)]; ok {
				res.Columns[field] = idx
				res.Headers[field] = strings.TrimSpace(alias)
				matched = true
				break
			}
		}
		if !matched {
			res.Unresolved = append(res.Unresolved, field)
		}
	}
	return res
}
