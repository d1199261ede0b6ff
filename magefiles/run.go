//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the testbed with anima.toml.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run engine...")
	_, err := executeCmd("go", withArgs("run", ".", "-config", "anima.toml"), withStream())
	return err
}

// Runs the testbed without a window on the simulated backend.
func (Run) Headless() error {
	_, err := executeCmd("go", withArgs("run", ".", "-config", "anima.toml", "-backend", "headless"), withStream())
	return err
}
