// Package airrohr reads measurements from sensor.community (airRohr) nodes.
//
// Every node serves its latest values as JSON at /data.json:
//
//	{
//	  "software_version": "NRZ-2020-133",
//	  "age": "97",
//	  "sensordatavalues": [
//	    {"value_type": "SDS_P1", "value": "17.43"},
//	    {"value_type": "SDS_P2", "value": "12.30"},
//	    {"value_type": "BME280_temperature", "value": "21.40"}
//	  ]
//	}
//
// Values are kept verbatim as strings. Known value types are classified
// into a Kind for display:
//
//	client := airrohr.NewClient()
//	readings, err := client.FetchReadings(ctx, "192.168.1.40")
//	if err != nil {
//	    fmt.Println(airrohr.GetShortErrorMessage(err))
//	}
//	for _, r := range readings.Known() {
//	    fmt.Println(r.Kind(), r.Format()) // PM2.5 12.30 µg/m³
//	}
//
// Requests are not retried. Callers that want periodic data call
// FetchReadings again.
package airrohr
