// Command thesis-crawler harvests thesis metadata from the USP digital library.
package main

import "github.com/JakeFAU/thesis-crawler/cmd"

func main() {
	cmd.Execute()
}
