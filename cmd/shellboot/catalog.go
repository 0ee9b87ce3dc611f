package main

import "github.com/nupi-ai/shellboot/internal/plugins"

// staticComponents are always available without loading.
var staticComponents = []string{
	"ActionNavbar",
	"Dashboard",
	"Notifications",
	"Toolbar",
	"Widgets",
}

func baseCatalog() *plugins.Catalog {
	descs := make([]plugins.Descriptor, 0, len(staticComponents))
	for _, name := range staticComponents {
		descs = append(descs, plugins.Static(name, plugins.Component{ID: name}))
	}
	return plugins.NewCatalog(descs...)
}
