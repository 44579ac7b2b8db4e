package mcpserver

// ImportRules describes how file content becomes typed database values, for
// consumers deciding how to fix files the session reported as ignored.
const ImportRules = `# Graph Import Rules

## Property types

Every user property gets a type the first time the session sees it:

| Observed value | Type |
|---|---|
| true / false | boolean |
| a number | number |
| an http, https, ftp or file URL | url |
| a list of page references or tags, all journal days | date |
| a list of page references or tags | page-reference |
| anything else | default (text) |

Reference types have cardinality many; everything else has cardinality one.
The first type wins for the whole session and is kept across sessions.

## Conflicts

When a later value has a different type than the registered one:

- registered default (text): the value is kept as its original text
- registered page-reference, observed date: the value is kept as page references
- every other pair: the value is dropped and reported by list_ignored_values
  with reason "discarded property value"

## Tags

Tags named in the graph's tag-classes setting become classes. Other page tags
are stored in the page-tags property; other block tags stay references.

## Existing pages

Importing a file never rewrites a page that already exists. Only properties,
tags, alias, namespace, type and schema are updated. Any other difference is
reported with reason "unhandled page attribute change" and a unified diff.

## Files

Supported: .md and .markdown pages and journals, and .json files under a
whiteboards/ directory. Other files are skipped. Whiteboard shapes may only
reference pages that already exist.
`
