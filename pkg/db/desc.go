package db

import "sibuild/pkg/catalog"

type CreateTableDesc struct {
	Schema *catalog.Schema
}

type CreateIndexDesc struct {
	Table   string
	Name    string
	Columns []string
}

type RebuildDesc struct {
	Table string
	Index string
}
