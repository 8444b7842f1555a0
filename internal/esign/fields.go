// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package esign

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Category tags the kind of template tab a business field fills.
type Category int

const (
	CategoryFullName Category = iota
	CategoryEmail
	CategoryText
	CategoryNumeric
	CategoryList
)

// Categories lists every category in mapping order.
var Categories = []Category{CategoryFullName, CategoryEmail, CategoryText, CategoryNumeric, CategoryList}

func (c Category) String() string {
	switch c {
	case CategoryFullName:
		return "fullName"
	case CategoryEmail:
		return "email"
	case CategoryText:
		return "text"
	case CategoryNumeric:
		return "numeric"
	case CategoryList:
		return "list"
	}
	return "Category(" + strconv.Itoa(int(c)) + ")"
}

// VINTabLabel is the template field that receives the vehicle VIN.
// The current template exposes the VIN as a number-style field, so it is
// kept out of the text tabs.
const VINTabLabel = "VIN"

// numberTabLabels are the numeric fields the template defines as true number
// tabs. Any other numeric-looking value (phone, model year, mileage) is sent
// as text so the provider never reformats it.
var numberTabLabels = map[string]bool{
	"Purchase Price":     true,
	"Plan Price":         true,
	"Down Payment":       true,
	"Monthly Payment":    true,
	"Financed Amount":    true,
	"Sales Tax":          true,
	"Total Price":        true,
	"Deductible":         true,
	"Term Months":        true,
	"Number Of Payments": true,
}

// IsNumberTabLabel reports whether label is routed to a number tab.
func IsNumberTabLabel(label string) bool {
	return numberTabLabels[label]
}

// ContractFields is the business input for one contract, grouped by the tab
// category each template field belongs to. Values may be strings, numbers,
// fmt.Stringers or nil; nil and blank values are dropped.
type ContractFields struct {
	FullName map[string]any `json:"fullName,omitempty"`
	Email    map[string]any `json:"email,omitempty"`
	Text     map[string]any `json:"text,omitempty"`
	Numeric  map[string]any `json:"numeric,omitempty"`
	List     map[string]any `json:"list,omitempty"`
	VIN      any            `json:"vin,omitempty"`
}

// Bucket returns the label/value map for one category.
func (f ContractFields) Bucket(c Category) map[string]any {
	switch c {
	case CategoryFullName:
		return f.FullName
	case CategoryEmail:
		return f.Email
	case CategoryText:
		return f.Text
	case CategoryNumeric:
		return f.Numeric
	case CategoryList:
		return f.List
	}
	return nil
}

// Tab is one template field assignment.
type Tab struct {
	TabLabel string `json:"tabLabel"`
	Value    string `json:"value"`
}

// Tabs are the categorised tab collections attached to a template role.
type Tabs struct {
	FullNameTabs []Tab `json:"fullNameTabs,omitempty"`
	EmailTabs    []Tab `json:"emailTabs,omitempty"`
	TextTabs     []Tab `json:"textTabs,omitempty"`
	NumberTabs   []Tab `json:"numberTabs,omitempty"`
	ListTabs     []Tab `json:"listTabs,omitempty"`
}

// Len is the total number of tabs across all collections.
func (t Tabs) Len() int {
	return len(t.FullNameTabs) + len(t.EmailTabs) + len(t.TextTabs) + len(t.NumberTabs) + len(t.ListTabs)
}

// MapFields converts contract fields into tab collections. A value is
// included only if it is non-nil and non-blank after trimming. Each
// collection is ordered by label so equal input always maps to equal output.
func MapFields(f ContractFields) Tabs {
	var tabs Tabs
	vin, hasVIN := stringify(f.VIN)

	// addText routes a tab to the text collection. A VIN that arrives in a
	// text-bound bucket is diverted to the dedicated VIN field instead.
	addText := func(tab Tab) {
		if tab.TabLabel == VINTabLabel {
			if !hasVIN {
				vin, hasVIN = tab.Value, true
			}
			return
		}
		tabs.TextTabs = append(tabs.TextTabs, tab)
	}

	for _, c := range Categories {
		for _, tab := range presentTabs(f.Bucket(c)) {
			switch c {
			case CategoryFullName:
				tabs.FullNameTabs = append(tabs.FullNameTabs, tab)
			case CategoryEmail:
				tabs.EmailTabs = append(tabs.EmailTabs, tab)
			case CategoryText:
				addText(tab)
			case CategoryNumeric:
				if IsNumberTabLabel(tab.TabLabel) {
					tab.Value = normalizeNumber(tab.Value)
					tabs.NumberTabs = append(tabs.NumberTabs, tab)
				} else {
					addText(tab)
				}
			case CategoryList:
				tabs.ListTabs = append(tabs.ListTabs, tab)
			}
		}
	}

	if hasVIN {
		tabs.NumberTabs = append(tabs.NumberTabs, Tab{TabLabel: VINTabLabel, Value: vin})
	}

	// Text and number collections merge two sources; keep them label-ordered.
	sortTabs(tabs.TextTabs)
	sortTabs(tabs.NumberTabs)

	return tabs
}

// presentTabs returns the non-blank entries of a bucket sorted by label.
func presentTabs(bucket map[string]any) []Tab {
	if len(bucket) == 0 {
		return nil
	}
	out := make([]Tab, 0, len(bucket))
	for label, raw := range bucket {
		if v, ok := stringify(raw); ok {
			out = append(out, Tab{TabLabel: label, Value: v})
		}
	}
	sortTabs(out)
	return out
}

func sortTabs(tabs []Tab) {
	sort.SliceStable(tabs, func(i, j int) bool {
		return tabs[i].TabLabel < tabs[j].TabLabel
	})
}

// stringify renders a field value and trims it. ok is false when the value
// is nil, a nil pointer, blank, or a composite with no scalar rendering.
// Non-nil pointers are dereferenced.
func stringify(v any) (string, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return "", false
	}

	var s string
	switch t := rv.Interface().(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		s = strconv.FormatBool(t)
	case fmt.Stringer:
		s = t.String()
	default:
		if str, ok := addrStringer(rv); ok {
			s = str.String()
			break
		}
		switch rv.Kind() {
		case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct,
			reflect.Chan, reflect.Func, reflect.UnsafePointer:
			return "", false
		}
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// addrStringer reports the Stringer of an addressable value whose String
// method has a pointer receiver.
func addrStringer(rv reflect.Value) (fmt.Stringer, bool) {
	if !rv.CanAddr() {
		return nil, false
	}
	str, ok := rv.Addr().Interface().(fmt.Stringer)
	return str, ok
}

var numberNoise = strings.NewReplacer("$", "", ",", "", " ", "")

// normalizeNumber strips currency formatting from a number-tab value. Values
// that still do not parse are passed through for the provider to validate.
func normalizeNumber(s string) string {
	d, err := decimal.NewFromString(numberNoise.Replace(s))
	if err != nil {
		return s
	}
	return d.String()
}
