/*
Package dsl provides a Go DSL for programmatically constructing novella stories.

It builds a domain.Document with a fluent builder instead of YAML or JSON
files, which is handy for tests, generated content and IDE completion.

Example usage:

	b := dsl.New("harbor").Title("Harbor").Flag("met_npc")

	b.Start("start").Go("dock")

	b.Scene("dock").
		Text("Gulls circle the empty pier.").
		Speaker("Narrator").
		Go("ask")

	b.Choice("ask").
		Text("What now?").
		Option("wave", "Wave at the ferryman", "ferry").If("flag.met_npc").
		Option("leave", "Walk home", "home")

	b.Ending("ferry", "crossing", "GOOD")
	b.Ending("home", "stayed", "NORMAL")

	store, err := b.Build()
*/
package dsl
