// Command skillgate arbitrates installable skills one at a time and
// quarantines entries that cause runaway process churn.
package main

func main() {
	Execute()
}
