// Command gifwright converts videos to GIFs, learns encode settings from past
// runs and removes duplicate artifacts.
//
//	gifwright run [paths...]      convert a batch and run the duplicate pass
//	gifwright plan [paths...]     show the settings a run would use
//	gifwright dupes [paths...]    find and resolve duplicate GIFs
//	gifwright cache stats|compact|validate|rebuild
//	gifwright model show|rebuild
//	gifwright doctor              check directories and ffprobe/ffmpeg
//	gifwright config init|validate|show
package main
