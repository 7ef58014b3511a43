package mcpserver

// HubConventions describes the folder and link layout maintained for hubs,
// for LLM consumers that create or reorganise hubs and items.
const HubConventions = `# Hub Conventions

A hub is a Markdown document whose YAML frontmatter sets the hub marker key
(default ` + "`" + `MOC-plugin: true` + "`" + `). Everything below is kept true automatically;
tools that violate it are repaired on the next update.

## Layout

` + "```" + `text
Work/                    # hub folder, named after the hub
  Work.md                # hub document
  attachments/           # hub attachments (reserved name)
  Report/                # item folder
    Report.md            # item entry document
    attachments/         # item attachments
` + "```" + `

## Rules

1. **Colocation.** A hub document lives in a folder with the same name.
   A hub created as ` + "`" + `Work.md` + "`" + ` is moved to ` + "`" + `Work/Work.md` + "`" + `.
2. **Items are folders.** Every item is a folder directly inside the hub folder
   holding a document of the same name. A loose document dropped into the hub
   folder is wrapped into its own item folder.
3. **Non-documents** (images, PDFs) belong in ` + "`" + `attachments/` + "`" + ` of the hub or item.
4. **Names** must not be empty, start with a dot, carry surrounding whitespace,
   or contain any of ` + "`" + `* " \ / < > : | ? [ ] # ^` + "`" + `.
5. **Collisions are never overwritten.** When a move would clobber a file the
   incoming copy is kept with a ` + "`" + `-duplicate` + "`" + ` suffix and a notice is raised.
6. **Templates.** New hubs start from ` + "`" + `MOCTemplate.md` + "`" + ` in the templates folder;
   new items of hub ` + "`" + `Work` + "`" + ` start from ` + "`" + `Work-template.md` + "`" + `.

## Links

The hub document links every item exactly once using the relative form:

` + "```" + `markdown
- [ ] [Report](Report/Report.md)
` + "```" + `

- Missing items are appended under the items heading.
- Links to removed items are dropped; text on the same line is kept.
- Wikilinks and absolute links to items are rewritten to the relative form.
- Links inside code spans and code blocks are never touched.

## Destructive operations

` + "`" + `delete_hub` + "`" + ` and ` + "`" + `delete_item` + "`" + ` require the configured confirmation phrase and
move content to the trash rather than deleting it.
`
