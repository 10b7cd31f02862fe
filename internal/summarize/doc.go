// Package summarize turns a web page into a Markdown note committed to GitHub.
//
// The pipeline is fetch → extract → LLM rewrite → frontmatter → commit. Every
// step is a blocking network or CPU call and is meant to run as a queue job.
package summarize
