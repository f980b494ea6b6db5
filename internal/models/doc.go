// Package models defines the domain entities shared by the sync pipeline.
//
// The package contains three groups of types:
//
// 1. Input: what row sources produce
//   - [Schema] / [Column] : ordered column names with declared types
//   - [Row] : one input record, an ordered column -> value mapping
//
// 2. Provider entities: audience (list) metadata and the member payload
//   - [Category], [Interest] : two-level interest grouping
//   - [MergeField] : custom member attribute with a [MergeFieldType]
//   - [Member], [Address] : the upsert payload for one contact
//   - [BatchRequest], [BatchResponse], [MemberError] : batch upsert wire shapes
//   - [Metadata] : everything resolved once per run and read-only afterwards
//
// 3. Output
//   - [RunReport] : cumulative counts for a run, returned to the caller
//
// Rows are immutable once buffered. Members are built fresh for each push and never retained.
package models
