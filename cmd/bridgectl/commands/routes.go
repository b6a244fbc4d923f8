package commands

import (
	"context"
	"fmt"
)

func runRoutes(args []string) error {
	fs, addr, format := newCommonFlags("routes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dialClient(*addr)

	routes, err := client.getRoutes(context.Background())
	if err != nil {
		return fmt.Errorf("get routes: %w", err)
	}

	out, err := formatRoutes(routes, *format)
	if err != nil {
		return fmt.Errorf("format routes: %w", err)
	}

	fmt.Print(out)
	return nil
}
