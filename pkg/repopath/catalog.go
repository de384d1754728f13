// Copyright 2021-2026 RCSB PDB
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

package repopath

// contentType describes one entry of the fixed content-type catalog:
// the code used in filenames and the permitted content formats.
type contentType struct {
	code    string
	formats []string
}

// catalog is the fixed table of permitted content-type/format pairs.
var catalog = map[string]contentType{
	"model":                  {"model", []string{"pdbx", "pdb", "cif"}},
	"structure-factors":      {"sf", []string{"pdbx", "mtz"}},
	"em-volume":              {"em-volume", []string{"map"}},
	"em-mask-volume":         {"em-mask-volume", []string{"map"}},
	"em-half-volume":         {"em-half-volume", []string{"map"}},
	"img-emdb":               {"img-emdb", []string{"jpg", "png", "gif", "svg", "tif"}},
	"fsc":                    {"fsc", []string{"xml"}},
	"nmr-restraints":         {"mr", []string{"amber", "cns", "cyana", "xplor", "pdb-mr", "mr"}},
	"nmr-chemical-shifts":    {"cs", []string{"nmr-star", "pdbx"}},
	"nmr-data-str":           {"nmr-data-str", []string{"pdbx", "nmr-star"}},
	"validation-report":      {"valrep", []string{"pdf"}},
	"validation-report-full": {"valrep-full", []string{"pdf"}},
	"validation-data":        {"valdata", []string{"xml", "json"}},
	"val-report-slider":      {"val-report-slider", []string{"png", "svg"}},
	"auxiliary-file":         {"aux-file", []string{"any"}},
	"upload-log":             {"upload-log", []string{"txt", "json"}},
}

// milestones is the fixed set of optional milestone tags.
var milestones = map[string]struct{}{
	"upload":         {},
	"upload-convert": {},
	"deposit":        {},
	"annotate":       {},
	"release":        {},
	"review":         {},
}

// formatExtensions maps content formats to filename extensions.
// Formats not listed here use the format name as extension.
var formatExtensions = map[string]string{
	"pdbx":     "cif",
	"pdb":      "pdb",
	"cif":      "cif",
	"nmr-star": "str",
	"pdb-mr":   "mr",
	"any":      "dat",
}

// repositoryTypes is the fixed set of repository roots.
var repositoryTypes = map[string]struct{}{
	"deposit":    {},
	"archive":    {},
	"workflow":   {},
	"session":    {},
	"tempdep":    {},
	"autogroup":  {},
	"uploads":    {},
	"unit-tests": {},
}

// ValidRepositoryType reports whether t names a known repository.
func ValidRepositoryType(t string) bool {
	_, ok := repositoryTypes[t]
	return ok
}

// ValidMilestone reports whether m is empty or a known milestone tag.
func ValidMilestone(m string) bool {
	if m == "" || m == "none" {
		return true
	}
	_, ok := milestones[m]
	return ok
}

// contentTypeCode returns the filename code for a permitted
// content-type/format pair, or false when the pair is not permitted.
func contentTypeCode(ct, format string) (string, bool) {
	entry, ok := catalog[ct]
	if !ok {
		return "", false
	}
	for _, f := range entry.formats {
		if f == format || f == "any" {
			return entry.code, true
		}
	}
	return "", false
}

// formatExtension returns the filename extension for a content format.
func formatExtension(format string) string {
	if ext, ok := formatExtensions[format]; ok {
		return ext
	}
	return format
}
