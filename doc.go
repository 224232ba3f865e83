// Package catafolk builds uniform indices of folk song datasets. Every
// dataset gets one CSV index with a row per song, assembled from the
// metadata embedded in its data files and from tables shipped alongside
// them. The stages below live in this package and its sub-packages.
//
// 1. Source
//
//    A Source collects the rows of one place holding metadata. The file
//    package reads kern and MusicXML files matched by a glob pattern, the
//    csv package reads delimited tables from disk, HTTP or S3. Sources do
//    not reshape their data beyond assigning each row an id. An id field,
//    or a small transformer run over each row, decides that id, and the
//    collected table is cached until the source is reset.
//
// 2. Operation
//
//    Operations are the vocabulary of transformations: rename, join,
//    split, format, replace, map_values, geohash and so on. They are
//    registered by name together with an arity that says how inputs relate
//    to outputs. See Operations for the full list.
//
// 3. Transformer
//
//    A Transformer is a graph of operation nodes compiled from the compact
//    shorthand used in dataset configurations, e.g.
//
//        [join, [file.OTL, csv.title], title, {sep: " / "}]
//
//    Nodes are ordered so that every field is computed before it is read,
//    and a record is passed through the graph in that order.
//
// 4. Index
//
//    The Index joins the tables of its sources on id, namespacing each
//    column by the name of its source, runs the transformer over every row
//    and keeps the fields of the index schema. The result is saved as CSV
//    and later runs can merge into it.
//
// The dataset package ties these together from a dataset directory and its
// dataset.yml, and cmd exposes them as the catafolk command.
package catafolk
