package urls

// Documentation URLs for guides and troubleshooting

// AirRohrGuide is the sensor.community build and setup guide for airRohr
// nodes, covering WiFi setup and the on-device configuration page.
const AirRohrGuide = "https://sensor.community/en/sensors/airrohr/"

// Firmware is the airRohr firmware repository, which documents the
// data.json format and the value_type names a node reports.
const Firmware = "https://github.com/opendata-stuttgart/sensors-software"

// Project is the airscout home page
const Project = "https://github.com/muurk/airscout"
