// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

// Issue ids.
const (
	ModuleNotFoundId Id = iota + 1
	PayloadInvalidId
	StorageCorruptId
	StorageLockedId
	NoAdapterId
	HostMismatchId
	PatchNameInvalidId
	ConfigLoadFailedId
	PermissionDeniedId
)

type (
	// Id identifies a catalog entry.
	Id int

	// MarkdownMsg is the Markdown body of an issue.
	MarkdownMsg string

	// HttpLink is a documentation link shown under an issue.
	HttpLink string

	// Issue is a catalog entry with Markdown help for one failure class.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

// Id returns the issue id.
func (i *Issue) Id() Id { return i.id }

// MarkdownMsg returns the Markdown body.
func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

// DocLinks returns a copy of the documentation links.
func (i *Issue) DocLinks() []HttpLink { return slices.Clone(i.docLinks) }

// Render renders the issue with the glamour style at stylePath ("dark",
// "light", "notty" or a JSON style file).
func (i *Issue) Render(stylePath string) (string, error) {
	var sb strings.Builder
	sb.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 {
		sb.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			sb.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(sb.String(), stylePath)
}

var (
	render = glamour.Render

	moduleNotFoundIssue = &Issue{
		id: ModuleNotFoundId,
		mdMsg: `
# Module not found

No module is installed at this location.

## Things you can try
- List the installed modules:
~~~
$ dynapk list
~~~
- Install the module first:
~~~
$ dynapk install <location> <payload.zip>
~~~`,
	}

	payloadInvalidIssue = &Issue{
		id: PayloadInvalidId,
		mdMsg: `
# Payload is not a valid archive

Module and patch payloads must be ZIP containers (zip, jar or apk). The
payload was stored but cannot be loaded until a valid revision replaces it.

## Things you can try
- Check the file type:
~~~
$ unzip -l <payload.zip>
~~~
- Ship a corrected payload with ` + "`dynapk update`" + `, or roll back with
  ` + "`dynapk uninstall`" + `.`,
	}

	storageCorruptIssue = &Issue{
		id: StorageCorruptId,
		mdMsg: `
# Module storage is damaged

A metadata record under the storage root could not be read. Damaged modules
are skipped at startup and the rest keep working.

## Things you can try
- Reinstall the affected module.
- Start from a clean storage root with ` + "`fresh_init: true`" + ` in the
  configuration. This removes every installed module.`,
	}

	storageLockedIssue = &Issue{
		id: StorageLockedId,
		mdMsg: `
# Storage root is in use

Another dynapk process holds the lock on the storage root.

## Things you can try
- Stop the running ` + "`dynapk serve`" + ` process, or
- point this command at a different ` + "`storage_location`" + `.`,
	}

	noAdapterIssue = &Issue{
		id: NoAdapterId,
		mdMsg: `
# Host generation not supported

No code loading adapter covers the configured host version.

## Things you can try
- Check ` + "`host.version`" + ` in the configuration. Supported
  generations start at v4.`,
	}

	hostMismatchIssue = &Issue{
		id: HostMismatchId,
		mdMsg: `
# Host does not match its declared version

The selected adapter needs a host capability the runtime does not provide.
The declared ` + "`host.version`" + ` is probably wrong.`,
	}

	patchNameInvalidIssue = &Issue{
		id: PatchNameInvalidId,
		mdMsg: `
# Invalid patch name

Patch names become directory names. They must be non-empty and must not
contain path separators. A trailing ` + "`_rst`" + ` marks a reset of the
patch with the same base name.`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Configuration could not be loaded

## Things you can try
- Print the effective configuration:
~~~
$ dynapk config show
~~~
- Write a fresh default file:
~~~
$ dynapk config init
~~~`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied

dynapk cannot write to its base directory or storage root.

## Things you can try
- Check ownership of ` + "`base_dir`" + `.
- Point ` + "`base_dir`" + ` at a writable directory.`,
	}

	issues = map[Id]*Issue{
		moduleNotFoundIssue.Id():   moduleNotFoundIssue,
		payloadInvalidIssue.Id():   payloadInvalidIssue,
		storageCorruptIssue.Id():   storageCorruptIssue,
		storageLockedIssue.Id():    storageLockedIssue,
		noAdapterIssue.Id():        noAdapterIssue,
		hostMismatchIssue.Id():     hostMismatchIssue,
		patchNameInvalidIssue.Id(): patchNameInvalidIssue,
		configLoadFailedIssue.Id(): configLoadFailedIssue,
		permissionDeniedIssue.Id(): permissionDeniedIssue,
	}
)

// Values returns every catalog entry ordered by id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

// Get returns the entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
