// Package scene loads reusable step sequences ("scenes") from YAML files and
// Go scripts and composes them into timeline blocks.
package scene
