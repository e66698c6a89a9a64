package cli

const stdoutPath = "-"

type getOptions struct {
	Output string
}

type putOptions struct {
	Key string
}
