package mcpserver

// NoteFormat describes how notes are written, linked and mirrored. It is
// served as the mimir://note-format resource.
const NoteFormat = `# Mimir Note Format

A note has a title, a plain-text body and an optional set of tags.

## Identity

- The note id is the slug of its title: lowercase, spaces become ` + "`-`" + `,
  punctuation is dropped. "Weekly Standup!" becomes ` + "`weekly-standup`" + `.
- Two titles with the same slug cannot coexist; the second create fails.
- Titles can change on update; the id and the vault file name do not.

## Links

- Reference another note with ` + "`[[Title]]`" + ` anywhere in the body.
- The target may not exist yet. Once a note with that title is created,
  the reference shows up in its incoming links.
- No other link syntax is recognised.

## Vault mirror

Each note is mirrored to ` + "`<id>.md`" + ` in the vault:

` + "```" + `markdown
# Weekly Standup
#meetings #team

Body text, with [[Project Plan]] references.
` + "```" + `

Files dropped into the vault are imported on the next scan. An optional
header sets the title and tags:

` + "```" + `markdown
---
title: Project Plan
tags: [work, q3]
---
Body text.
` + "```" + `

Without a header the title is the file name without extension.
`
