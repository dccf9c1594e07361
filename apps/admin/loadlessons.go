package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core/course"
)

// loadLessons imports a JSON catalog of units and lessons. Existing lessons are replaced by number.
func (cli *commandLine) loadLessons(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading catalog")
	}
	var cat course.Catalog
	if err = json.Unmarshal(data, &cat); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}
	n, err := cli.courseSvc.Import(context.Background(), cat)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d units and %d lessons loaded.\n", len(cat.Units), n)
	return nil
}
