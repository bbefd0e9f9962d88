package queries

import (
	"io/fs"
	"reflect"
	"strings"
	"testing"
)

var statementByFolder = map[string]string{
	"delete": "DELETE",
	"insert": "INSERT",
	"schema": "CREATE",
	"select": "SELECT",
	"update": "UPDATE",
}

func TestQueryHelperAllStringsRecursive(t *testing.T) {
	// collect all query paths in QueryHelper
	var paths []string
	collectQueryPaths(reflect.ValueOf(QueryHelper), &paths)

	if len(paths) == 0 {
		t.Fatal("no query paths in QueryHelper found")
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			content := Get(path)
			if content == "" {
				t.Fatalf("query file %q is empty", path)
			}

			folder, _, _ := strings.Cut(path, "/")
			keyword, ok := statementByFolder[folder]
			if !ok {
				t.Fatalf("query file %q lives in unknown folder %q", path, folder)
			}
			if !strings.HasPrefix(strings.TrimSpace(strings.ToUpper(content)), keyword) {
				t.Errorf("query file %q should start with %s", path, keyword)
			}
		})
	}

	// count the embedded .sql files rather than walking the disk, the embed pattern is what ships
	count := 0
	err := fs.WalkDir(Files, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			count++
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Error walking the embedded files: %v", err)
	}

	// every embedded file must be reachable from QueryHelper, 1:1
	if count != len(paths) {
		t.Fatalf("number of embedded .sql files does not match number of query paths in QueryHelper (%d != %d)", count, len(paths))
	}
}

func TestGetPanicsOnUnknownPath(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Get to panic for a missing query file")
		}
	}()

	Get("select/does_not_exist.sql")
}

// collectQueryPaths recursively walks v (a struct or pointer to struct) and
// appends every string field value to paths.
func collectQueryPaths(v reflect.Value, paths *[]string) {
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)

		if field.Kind() == reflect.String {
			if s := field.String(); s != "" {
				*paths = append(*paths, s)
			}
		} else {
			collectQueryPaths(field, paths)
		}
	}
}
