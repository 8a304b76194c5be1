package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	autotrace "github.com/lightstep/lightstep-autotrace-go"
	opentracing "github.com/opentracing/opentracing-go"
)

type Carriers struct {
	TextMap map[string]string `json:"text_map"`

	B3 map[string]string `json:"b3"`
}

func main() {
	var carriers Carriers
	if err := json.NewDecoder(os.Stdin).Decode(&carriers); err != nil {
		log.Println(carriers)
		fatal("could not read carriers from stdin: ", err)
	}

	spanContextTextMap, err := autotrace.TraceContextPropagator.Extract(opentracing.TextMapCarrier(carriers.TextMap))
	if err != nil {
		fatal("could not extract text map context: ", err)
	}

	spanContextB3, err := autotrace.B3Propagator.Extract(opentracing.TextMapCarrier(carriers.B3))
	if err != nil {
		fatal("could not extract b3 context: ", err)
	}

	output := Carriers{
		TextMap: make(map[string]string),
		B3:      make(map[string]string),
	}

	err = autotrace.TraceContextPropagator.Inject(spanContextTextMap, opentracing.TextMapCarrier(output.TextMap))
	if err != nil {
		fatal("could not inject text map context: ", err)
	}

	if err := autotrace.B3Propagator.Inject(spanContextB3, opentracing.TextMapCarrier(output.B3)); err != nil {
		fatal("could not inject b3 context: ", err)
	}

	if err := json.NewEncoder(os.Stdout).Encode(output); err != nil {
		fatal("could not marshal json to stdout: ", err)
	}
	os.Exit(0)
}

func fatal(args ...interface{}) {
	fmt.Println(args...)
	os.Exit(1)
}
