// Command foresightctl runs Foresight jobs and predictions without the server.
package main

import "github.com/aristath/foresight/internal/cli"

func main() {
	cli.Execute()
}
