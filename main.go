// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/CtripMobile/DynamicAPK/cmd/dynapk"

func main() {
	cmd.Execute()
}
