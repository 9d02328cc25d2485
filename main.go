// SPDX-License-Identifier: MPL-2.0

package main

import "github.com/respack/respack/cmd/respack"

func main() {
	cmd.Execute()
}
