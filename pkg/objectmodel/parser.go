package objectmodel

import (
	"encoding/xml"
	"fmt"
	"sort"

	"github.com/sailmerge/sailmerge/pkg/appzip"
	"github.com/sailmerge/sailmerge/pkg/core"
)

// header is the common envelope every Appian object XML export carries:
// a stable uuid, a display name, a per-edit version uuid, and an optional
// deprecation marker (spec.md §4.2, §9 open question).
type header struct {
	UUID        string `xml:"uuid,attr"`
	Name        string `xml:"name,attr"`
	VersionUUID string `xml:"versionUuid,attr"`
	Deprecated  bool   `xml:"deprecated,attr"`
}

// ParsedObject is the output of Parse: a registry-ready identity plus a
// package-scoped Version payload.
type ParsedObject struct {
	UUID       string
	Name       string
	ObjectType core.ObjectType
	Version    Version
}

// ParseWarning records a non-fatal per-object parse failure (spec.md §4.2,
// §7: ParseFailure is "non-fatal per object; logged, object recorded as
// Unknown").
type ParseWarning struct {
	FileName string
	Err      error
}

// Parse decodes one package entry into a ParsedObject. Malformed XML never
// returns an error: it instead produces an ObjectTypeUnknown record keyed by
// a synthetic identity derived from the file name, with the raw bytes
// preserved for fallback display, and returns a non-nil warning for the
// caller to log once (spec.md §4.2).
func Parse(entry appzip.Entry, role core.PackageRole) (ParsedObject, *ParseWarning) {
	var h header
	if err := xml.Unmarshal(entry.XML, &h); err != nil || h.UUID == "" {
		warnErr := err
		if warnErr == nil {
			warnErr = fmt.Errorf("missing uuid attribute")
		}
		return unknownFallback(entry, role), &ParseWarning{FileName: entry.FileName, Err: warnErr}
	}

	fields, properties, code, err := decodeBody(entry.ObjectType, entry.XML)
	if err != nil {
		return unknownFallback(entry, role), &ParseWarning{FileName: entry.FileName, Err: err}
	}

	obj := ParsedObject{
		UUID:       h.UUID,
		Name:       h.Name,
		ObjectType: entry.ObjectType,
		Version: Version{
			ObjectUUID:   h.UUID,
			Role:         role,
			VersionUUID:  h.VersionUUID,
			ScriptedCode: code,
			Fields:       fields,
			Properties:   properties,
			Deprecated:   h.Deprecated,
		},
	}
	if entry.ObjectType == core.ObjectTypeUnknown {
		obj.Version.RawXML = entry.XML
	}
	return obj, nil
}

func unknownFallback(entry appzip.Entry, role core.PackageRole) ParsedObject {
	// A malformed object still needs a stable identity so NEW/REMOVED
	// determination (which operates purely on uuid membership) has
	// something to key on; the file name is the only stable handle we have.
	uuid := "unknown:" + entry.FileName
	return ParsedObject{
		UUID:       uuid,
		Name:       entry.FileName,
		ObjectType: core.ObjectTypeUnknown,
		Version: Version{
			ObjectUUID: uuid,
			Role:       role,
			RawXML:     entry.XML,
		},
	}
}

// decodeBody dispatches to the per-type body decoder and returns the
// structured Fields/Properties payload plus, for scripted types, the raw
// (pre-formatter) code string.
func decodeBody(t core.ObjectType, raw []byte) (fields, properties map[string]any, code string, err error) {
	switch t {
	case core.ObjectTypeInterface:
		return decodeInterface(raw)
	case core.ObjectTypeExpressionRule:
		return decodeExpressionRule(raw)
	case core.ObjectTypeIntegration, core.ObjectTypeWebAPI:
		return decodeIntegration(raw)
	case core.ObjectTypeProcessModel:
		return decodeProcessModel(raw)
	case core.ObjectTypeRecordType:
		return decodeRecordType(raw)
	case core.ObjectTypeCDT:
		return decodeCDT(raw)
	case core.ObjectTypeConstant:
		return decodeConstant(raw)
	case core.ObjectTypeSite:
		return decodeSite(raw)
	case core.ObjectTypeGroup:
		return decodeGroup(raw)
	case core.ObjectTypeConnectedSystem:
		return decodeConnectedSystem(raw)
	case core.ObjectTypeDataStore:
		return decodeDataStore(raw)
	default:
		return map[string]any{}, map[string]any{}, "", nil
	}
}

// --- Scripted types ---

type scriptedXML struct {
	Code       string   `xml:"code"`
	Parameters []param  `xml:"parameters>parameter"`
	Security   security `xml:"security"`
	Inputs     []param  `xml:"inputs>input"`
	OutputType string   `xml:"outputType"`
}

type param struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type security struct {
	Descriptor string `xml:",chardata"`
}

func decodeInterface(raw []byte) (map[string]any, map[string]any, string, error) {
	var x scriptedXML
	if err := xml.Unmarshal(raw, &x); err != nil {
		return nil, nil, "", err
	}
	params := sortedParams(x.Parameters)
	fields := map[string]any{"parameters": params}
	properties := map[string]any{"security": x.Security.Descriptor}
	return fields, properties, x.Code, nil
}

func decodeExpressionRule(raw []byte) (map[string]any, map[string]any, string, error) {
	var x scriptedXML
	if err := xml.Unmarshal(raw, &x); err != nil {
		return nil, nil, "", err
	}
	inputs := sortedParams(x.Inputs)
	fields := map[string]any{"inputs": inputs, "outputType": x.OutputType}
	return fields, map[string]any{}, x.Code, nil
}

type integrationXML struct {
	Code     string   `xml:"code"`
	Endpoint string   `xml:"endpoint"`
	Methods  []string `xml:"methods>method"`
	Auth     string   `xml:"auth"`
}

func decodeIntegration(raw []byte) (map[string]any, map[string]any, string, error) {
	var x integrationXML
	if err := xml.Unmarshal(raw, &x); err != nil {
		return nil, nil, "", err
	}
	methods := append([]string(nil), x.Methods...)
	sort.Strings(methods)
	fields := map[string]any{"endpoint": x.Endpoint, "methods": methods}
	properties := map[string]any{"auth": x.Auth}
	return fields, properties, x.Code, nil
}

func sortedParams(in []param) []map[string]any {
	cp := append([]param(nil), in...)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Name < cp[j].Name })
	out := make([]map[string]any, 0, len(cp))
	for _, p := range cp {
		out = append(out, map[string]any{"name": p.Name, "type": p.Type})
	}
	return out
}

// --- Process Model ---

type processModelXML struct {
	Nodes     []pmNode     `xml:"nodes>node"`
	Flows     []pmFlow     `xml:"flows>flow"`
	Variables []pmVariable `xml:"variables>variable"`
}

type pmNode struct {
	UUID       string `xml:"uuid,attr"`
	Name       string `xml:"name,attr"`
	Type       string `xml:"type,attr"`
	Properties string `xml:",chardata"`
}

type pmFlow struct {
	Source    string `xml:"source,attr"`
	Target    string `xml:"target,attr"`
	Condition string `xml:"condition,attr"`
}

type pmVariable struct {
	Name    string `xml:"name,attr"`
	Type    string `xml:"type,attr"`
	Default string `xml:"default,attr"`
}

func decodeProcessModel(raw []byte) (map[string]any, map[string]any, string, error) {
	var x processModelXML
	if err := xml.Unmarshal(raw, &x); err != nil {
		return nil, nil, "", err
	}
	nodes := make([]map[string]any, 0, len(x.Nodes))
	for _, n := range x.Nodes {
		nodes = append(nodes, map[string]any{"uuid": n.UUID, "name": n.Name, "type": n.Type, "properties": n.Properties})
	}
	flows := make([]map[string]any, 0, len(x.Flows))
	for _, f := range x.Flows {
		flows = append(flows, map[string]any{"source": f.Source, "target": f.Target, "condition": f.Condition})
	}
	vars := make([]map[string]any, 0, len(x.Variables))
	for _, v := range x.Variables {
		vars = append(vars, map[string]any{"name": v.Name, "type": v.Type, "default": v.Default})
	}
	fields := map[string]any{"nodes": nodes, "flows": flows, "variables": vars}
	return fields, map[string]any{}, "", nil
}

// --- Record Type ---

type recordTypeXML struct {
	Fields        []namedField `xml:"fields>field"`
	Relationships []namedField `xml:"relationships>relationship"`
	Views         []string     `xml:"views>view"`
	Actions       []string     `xml:"actions>action"`
}

type namedField struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

func decodeRecordType(raw []byte) (map[string]any, map[string]any, string, error) {
	var x recordTypeXML
	if err := xml.Unmarshal(raw, &x); err != nil {
		return nil, nil, "", err
	}
	fields := map[string]any{
		"fields":        namedFieldsToMaps(x.Fields),
		"relationships": namedFieldsToMaps(x.Relationships),
		"views":         sortedStrings(x.Views),
		"actions":       sortedStrings(x.Actions),
	}
	return fields, map[string]any{}, "", nil
}

// --- CDT ---

type cdtXML struct {
	Fields []namedField `xml:"fields>field"`
}

func decodeCDT(raw []byte) (map[string]any, map[string]any, string, error) {
	var x cdtXML
	if err := xml.Unmarshal(raw, &x); err != nil {
		return nil, nil, "", err
	}
	return map[string]any{"fields": namedFieldsToMaps(x.Fields)}, map[string]any{}, "", nil
}

func namedFieldsToMaps(in []namedField) []map[string]any {
	cp := append([]namedField(nil), in...)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Name < cp[j].Name })
	out := make([]map[string]any, 0, len(cp))
	for _, f := range cp {
		out = append(out, map[string]any{"name": f.Name, "type": f.Type})
	}
	return out
}

func sortedStrings(in []string) []string {
	cp := append([]string(nil), in...)
	sort.Strings(cp)
	return cp
}

// --- Constant ---

type constantXML struct {
	Value    string `xml:"value"`
	DataType string `xml:"dataType,attr"`
	Scope    string `xml:"scope,attr"`
}

func decodeConstant(raw []byte) (map[string]any, map[string]any, string, error) {
	var x constantXML
	if err := xml.Unmarshal(raw, &x); err != nil {
		return nil, nil, "", err
	}
	fields := map[string]any{"value": x.Value, "dataType": x.DataType, "scope": x.Scope}
	return fields, map[string]any{}, "", nil
}

// --- Site ---

type siteXML struct {
	Pages []sitePage `xml:"pages>page"`
}

type sitePage struct {
	Name     string     `xml:"name,attr"`
	Children []sitePage `xml:"page"`
}

func pageToMap(p sitePage) map[string]any {
	children := make([]map[string]any, 0, len(p.Children))
	for _, c := range p.Children {
		children = append(children, pageToMap(c))
	}
	return map[string]any{"name": p.Name, "children": children}
}

func decodeSite(raw []byte) (map[string]any, map[string]any, string, error) {
	var x siteXML
	if err := xml.Unmarshal(raw, &x); err != nil {
		return nil, nil, "", err
	}
	// Page hierarchy is semantically ordered (spec.md §4.4) — never sorted.
	pages := make([]map[string]any, 0, len(x.Pages))
	for _, p := range x.Pages {
		pages = append(pages, pageToMap(p))
	}
	return map[string]any{"pages": pages}, map[string]any{}, "", nil
}

// --- Group ---

type groupXML struct {
	ParentUUID string   `xml:"parentUuid,attr"`
	Members    []string `xml:"members>member"`
}

func decodeGroup(raw []byte) (map[string]any, map[string]any, string, error) {
	var x groupXML
	if err := xml.Unmarshal(raw, &x); err != nil {
		return nil, nil, "", err
	}
	fields := map[string]any{"parentUuid": x.ParentUUID, "members": sortedStrings(x.Members)}
	return fields, map[string]any{}, "", nil
}

// --- Connected System ---

type connectedSystemXML struct {
	SystemType string        `xml:"systemType,attr"`
	Properties []namedField  `xml:"properties>property"`
}

func decodeConnectedSystem(raw []byte) (map[string]any, map[string]any, string, error) {
	var x connectedSystemXML
	if err := xml.Unmarshal(raw, &x); err != nil {
		return nil, nil, "", err
	}
	fields := map[string]any{"systemType": x.SystemType}
	properties := map[string]any{"properties": namedFieldsToMaps(x.Properties)}
	return fields, properties, "", nil
}

// --- Data Store ---

type dataStoreXML struct {
	Entities []string `xml:"entities>entity"`
}

func decodeDataStore(raw []byte) (map[string]any, map[string]any, string, error) {
	var x dataStoreXML
	if err := xml.Unmarshal(raw, &x); err != nil {
		return nil, nil, "", err
	}
	return map[string]any{"entities": sortedStrings(x.Entities)}, map[string]any{}, "", nil
}
