//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target to run when none is specified
var Default = Build

// Build compiles the project binaries into the bin/ directory.
func Build() error {
	fmt.Println("Building...")
	return sh.Run("go", "build", "-o", "./bin", "./...")
}

// Install copies the mkolist binary to /usr/local/bin.
func Install() error {
	mg.Deps(Build)
	fmt.Println("Installing...")
	return sh.Run("cp", "bin/mkolist", "/usr/local/bin/mkolist")
}

// Import builds mkolist and loads data/ into olist.db with debug logging.
func Import() error {
	mg.Deps(Build)
	fmt.Println("Importing...")
	return sh.RunV("./bin/mkolist", "--log-level", "debug")
}

// Test runs all tests in the project with verbose output.
func Test() error {
	fmt.Println("Running Tests...")
	return sh.Run("go", "test", "-v", "./...")
}

// TestImporter runs the end-to-end import scenarios.
func TestImporter() error {
	fmt.Println("Running Importer Tests...")
	return sh.Run("go", "test", "-test.fullpath=true", "-timeout", "60s", "-run", "^Test", "github.com/darianmavgo/mkolist/importer")
}

// Bench runs the parser benchmarks.
func Bench() error {
	fmt.Println("Running Benchmarks...")
	return sh.RunV("go", "test", "-run", "^$", "-bench", ".", "-benchmem", "./converters/...")
}

// Clean removes the bin directory and the default database.
func Clean() error {
	fmt.Println("Cleaning...")
	if err := os.RemoveAll("bin"); err != nil {
		return err
	}
	for _, p := range []string{"olist.db", "olist.db-journal"} {
		if err := os.RemoveAll(p); err != nil {
			return err
		}
	}
	return nil
}

// Tidy runs go mod tidy.
func Tidy() error {
	fmt.Println("Running go mod tidy...")
	return sh.Run("go", "mod", "tidy")
}

// Check runs formatting and linting checks (fmt, vet).
func Check() error {
	mg.Deps(Fmt, Vet)
	return nil
}

// Fmt runs go fmt ./...
func Fmt() error {
	fmt.Println("Running go fmt...")
	return sh.Run("go", "fmt", "./...")
}

// Vet runs go vet ./...
func Vet() error {
	fmt.Println("Running go vet...")
	return sh.Run("go", "vet", "./...")
}
