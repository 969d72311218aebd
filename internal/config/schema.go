package config

// schemaSource is the closed CUE definition every pipeline config must
// satisfy. Kind-specific rules that need more than types are checked by the
// stage registry.
const schemaSource = `
// Go duration strings such as "90s" or "1h30m".
#Duration: string & != ""

#Entrypoint: {
	declared?:    string
	manifest?:    string
	scan?:        string
	conventions?: [...string]
	rule?:        string
	prefer?:      "manifest" | "convention"
}

#Stage: {
	name:      string & != ""
	kind:      "compile" | "relocate" | "package" | "resolve" | "assemble" | "publish" | "command"
	inputs?:   [...string]
	outputs?:  [...string]
	command?:  [...string]
	dir?:      string
	env?:      [string]: string
	produces?: [string]: string
	timeout?:  #Duration
	retry?: {
		attempts: int & >=1
		backoff?: #Duration
	}

	destination?:    string
	mode?:           "copy" | "move"
	includeIgnored?: bool

	entrypoint?: #Entrypoint

	bundle?:        string
	entrypointKey?: string
	launcher?:      [...string]
	workingDir?:    string
	labels?:        [string]: string

	image?:     string
	driver?:    "oras" | "command"
	tag?:       string
	plainHTTP?: bool
}

#Config: {
	configVersion: string
	name?:         string
	options?: {
		concurrency?: int & >=1
		timeout?:     #Duration
		registry?:    string
		workdir?:     string
		stateFile?:   string
		env?:         [string]: string
	}
	artifacts?: [string]: string
	stages: [...#Stage]
}
`
