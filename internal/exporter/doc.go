// Package exporter writes assembled datasets as CSV, XLSX or JSON.
//
// All formats share one layout: a header with the column names and one row
// per trial. Series cells hold their samples separated by spaces. Files are
// written atomically, so an interrupted export leaves any previous file in
// place.
//
//	err := exporter.New(exporter.Options{}).Write(ds, "out/dataset.xlsx")
package exporter
