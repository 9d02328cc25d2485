// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
)

// Id identifies a catalog entry.
type Id int

var idNames = map[Id]string{
	ConfigInvalidId:       "config-invalid",
	UnexpectedArtifactId:  "unexpected-artifact",
	DescriptorMalformedId: "descriptor-malformed",
	ManifestInvalidId:     "manifest-invalid",
	ArchiveFailedId:       "archive-failed",
	CleanupFailedId:       "cleanup-failed",
	PermissionDeniedId:    "permission-denied",
	WorkDirNotFoundId:     "workdir-not-found",
}

// Name returns the kebab-case name of the id, or "" for an unknown id.
func (id Id) Name() string {
	return idNames[id]
}

// Lookup returns the catalog entry named name, or nil.
func Lookup(name string) *Issue {
	for id, n := range idNames {
		if n == name {
			return issues[id]
		}
	}
	return nil
}

const (
	ConfigInvalidId Id = iota + 1
	UnexpectedArtifactId
	DescriptorMalformedId
	ManifestInvalidId
	ArchiveFailedId
	CleanupFailedId
	PermissionDeniedId
	WorkDirNotFoundId
)

type (
	// MarkdownMsg is the markdown body of an issue.
	MarkdownMsg string

	// HttpLink points at further reading.
	HttpLink string

	// Issue is a catalog entry explaining a failure class and its remedies.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
		extLinks []HttpLink
	}
)

// Id returns the catalog id.
func (i *Issue) Id() Id {
	return i.id
}

// MarkdownMsg returns the raw markdown body.
func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

// DocLinks returns a copy of the documentation links.
func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

// ExtLinks returns a copy of the external links.
func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Title returns the text of the first top-level heading.
func (i *Issue) Title() string {
	for line := range strings.SplitSeq(string(i.mdMsg), "\n") {
		if title, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(title)
		}
	}
	return ""
}

// Markdown returns the body followed by a "See also" list of links.
func (i *Issue) Markdown() string {
	var sb strings.Builder
	sb.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		sb.WriteString("\n\n## See also\n")
		for _, link := range slices.Concat(i.docLinks, i.extLinks) {
			sb.WriteString("- <" + string(link) + ">\n")
		}
	}
	return sb.String()
}

// Render renders the issue for a terminal with the given glamour style
// ("dark", "light", "notty", "auto").
func (i *Issue) Render(stylePath string) (string, error) {
	return render(i.Markdown(), stylePath)
}

var (
	render = glamour.Render

	configInvalidIssue = &Issue{
		id: ConfigInvalidId,
		mdMsg: `
# Invalid build configuration

The build was rejected before any file was touched.

## Things you can try:
- Make sure ` + "`recursion_limit`" + ` is a whole number, such as ` + "`2000`" + `
- Make sure ` + "`layout.descriptor_file`" + ` is the target of one of ` + "`layout.extensions`" + `
- Check ` + "`RESPACK_*`" + ` environment variables and command-line flags
- Print the effective configuration:
~~~
$ respack config show
~~~`,
	}

	unexpectedArtifactIssue = &Issue{
		id: UnexpectedArtifactId,
		mdMsg: `
# Unexpected generated file

The generated tree contains a file whose extension is not in the extension
table, so it cannot be placed in a resource directory. Nothing was moved.

## Things you can try:
- Map the extension to a file name in ` + "`layout.extensions`" + `:
~~~cue
layout: extensions: {
	py:   "code.py"
	json: "resource.json"
	txt:  "notes.txt"
}
~~~
- Remove the file from the template output
- Add it to ` + "`layout.bookkeeping`" + ` if it is generator metadata`,
	}

	descriptorMalformedIssue = &Issue{
		id: DescriptorMalformedId,
		mdMsg: `
# Malformed resource descriptor

A resource descriptor is not a JSON object, or one of its known fields has
the wrong type or value (an unknown scope, a files entry outside the
resource). A descriptor with a bad field is never replaced; strict signing
also refuses descriptors that are not valid JSON.

## Things you can try:
- Fix the descriptor by hand and rebuild
- Disable strict signing to sign a descriptor with broken JSON syntax from an
  empty one instead:
~~~cue
signing: strict: false
~~~`,
	}

	manifestInvalidIssue = &Issue{
		id: ManifestInvalidId,
		mdMsg: `
# Invalid project manifest

The project manifest does not match the expected shape. It needs at least a
non-empty ` + "`title`" + `.

## Example:
~~~json
{
  "title": "Petstore",
  "description": "Generated API client",
  "enabled": true,
  "inheritable": false
}
~~~

Delete the file to have respack render one from the ` + "`manifest`" + ` settings.`,
	}

	archiveFailedIssue = &Issue{
		id: ArchiveFailedId,
		mdMsg: `
# Archive could not be written

Writing or updating an archive failed. Appending the manifest never leaves a
half-written project archive behind; the previous archive is kept.

## Things you can try:
- Check free disk space in the working directory
- Make sure no other process holds the archive open
- Run with ` + "`--verbose`" + ` to see the full error chain`,
	}

	cleanupFailedIssue = &Issue{
		id: CleanupFailedId,
		mdMsg: `
# Workspace cleanup failed

The archives were written, but an intermediate file or directory could not be
removed. Paths that are already gone are never an error.

## Things you can try:
- Check the permissions of the working directory
- Remove the reported path by hand`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied

respack could not read, move or write a path in the working directory.

## Things you can try:
- Check the owner and mode of the working directory and its contents
- Do not run two builds in the same directory at the same time`,
	}

	workDirNotFoundIssue = &Issue{
		id: WorkDirNotFoundId,
		mdMsg: `
# Working directory not found

The directory to post-process does not exist or does not contain the bundle
directory.

## Things you can try:
- Pass the generator output directory:
~~~
$ respack build ./out
~~~
- Check ` + "`layout.bundle_dir`" + ` and ` + "`layout.resource_root`",
	}

	issues = map[Id]*Issue{
		configInvalidIssue.Id():       configInvalidIssue,
		unexpectedArtifactIssue.Id():  unexpectedArtifactIssue,
		descriptorMalformedIssue.Id(): descriptorMalformedIssue,
		manifestInvalidIssue.Id():     manifestInvalidIssue,
		archiveFailedIssue.Id():       archiveFailedIssue,
		cleanupFailedIssue.Id():       cleanupFailedIssue,
		permissionDeniedIssue.Id():    permissionDeniedIssue,
		workDirNotFoundIssue.Id():     workDirNotFoundIssue,
	}
)

// Values returns every catalog entry ordered by id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return cmp.Compare(a.id, b.id)
	})
}

// Get returns the catalog entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
