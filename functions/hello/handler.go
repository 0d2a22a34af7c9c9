// hello is an in-process handler. Build it with
//
//	go build -buildmode=plugin -o /app/usermodule.so .
package main

import (
	"context"
	"fmt"

	"github.com/3s-rg-codes/kvfaas/pkg/execution"
)

var Handler execution.HandlerFunc = hello

func hello(_ context.Context, input any, snap execution.Snapshot) (any, error) {
	fields, _ := input.(map[string]any)
	name, _ := fields["name"].(string)
	if name == "" {
		name = "WORLD"
	}
	return map[string]any{
		"greeting":      fmt.Sprintf("HELLO %s!", name),
		"invocation_id": snap.InvocationID,
	}, nil
}
